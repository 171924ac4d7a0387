package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"elearning-quiz-service/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("elearning-quiz-service/internal/app")

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID int64) error
}

// QuizCatalog writes and lists quizzes in the backing store.
type QuizCatalog interface {
	CreateQuiz(ctx context.Context, draft domain.QuizDraft) (domain.Quiz, error)
	// DeleteQuiz returns the ids of users whose attempts were removed with the quiz.
	DeleteQuiz(ctx context.Context, quizID int64) ([]int64, error)
	ListQuizzesByCourse(ctx context.Context, courseID int64) ([]domain.Quiz, error)
}

// ResultRepository is the attempt ledger. InsertResult returns domain.ErrAlreadyPassed when a
// passing row already exists for the same user and quiz.
type ResultRepository interface {
	FindPassed(ctx context.Context, userID, quizID int64) (domain.AttemptResult, bool, error)
	InsertResult(ctx context.Context, result *domain.AttemptResult) error
	ListResultsByUser(ctx context.Context, userID int64) ([]domain.AttemptResult, error)
}

type UserRepository interface {
	UpdateLevel(ctx context.Context, userID int64, level domain.Level) error
}

type CourseRepository interface {
	GetCourse(ctx context.Context, courseID int64) (domain.Course, error)
}

// Locker serializes work on a key (in-process or distributed).
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Metrics receives submission outcomes: "passed", "failed" or "cached".
type Metrics interface {
	ObserveSubmission(outcome string, percentage float64)
}

type Repositories struct {
	Quizzes QuizRepository
	Catalog QuizCatalog
	Results ResultRepository
	Users   UserRepository
	Courses CourseRepository
}

// QuizService contains the quiz use cases: scoring pipeline and catalog.
type QuizService struct {
	quizzes QuizRepository
	catalog QuizCatalog
	results ResultRepository
	users   UserRepository
	courses CourseRepository
	locker  Locker

	gate    PassGate
	levels  domain.LevelPolicy
	metrics Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*QuizService)

func WithPassGate(g PassGate) Option { return func(s *QuizService) { s.gate = g } }

func WithLevelPolicy(p domain.LevelPolicy) Option { return func(s *QuizService) { s.levels = p } }

func WithMetrics(m Metrics) Option { return func(s *QuizService) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(s *QuizService) { s.log = l } }

// WithClock is for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }

func NewQuizService(repos Repositories, locker Locker, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes: repos.Quizzes,
		catalog: repos.Catalog,
		results: repos.Results,
		users:   repos.Users,
		courses: repos.Courses,
		locker:  locker,
		gate:    NewPassGate(DefaultPassThreshold),
		levels:  domain.DefaultLevelPolicy,
		metrics: nopMetrics{},
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit scores a student's answers for a quiz and records the attempt.
// Once the student has passed, the stored pass is returned and nothing is rescored or written.
func (s *QuizService) Submit(ctx context.Context, actor domain.Actor, quizID int64, answers []domain.AnswerSubmission) (domain.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "QuizService.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("quiz.id", quizID),
		attribute.Int64("user.id", actor.UserID),
		attribute.Int("answers", len(answers)),
	)

	if actor.Role != domain.RoleStudent {
		return domain.SubmitResult{}, domain.ErrForbidden
	}

	unlock, err := s.locker.Lock(ctx, submissionKey(actor.UserID, quizID))
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("lock submission: %w", err)
	}
	defer unlock()

	result, err := s.submitLocked(ctx, actor.UserID, quizID, answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SubmitResult{}, err
	}
	span.SetAttributes(attribute.Bool("quiz.passed", result.Passed), attribute.Float64("quiz.percentage", result.Percentage))
	return result, nil
}

func (s *QuizService) submitLocked(ctx context.Context, userID, quizID int64, answers []domain.AnswerSubmission) (domain.SubmitResult, error) {
	prior, found, err := s.results.FindPassed(ctx, userID, quizID)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("find passed result: %w", err)
	}
	if found {
		s.metrics.ObserveSubmission("cached", prior.Percentage)
		return cachedResult(prior), nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	// total is the question count of the quiz loaded by this submission.
	total := len(quiz.Questions)
	score, percentage, err := scoreAnswers(validateAnswers(quiz, answers), total)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	passed, canRetry := s.gate.Evaluate(percentage)

	attempt := domain.AttemptResult{
		UserID:     userID,
		QuizID:     quizID,
		Score:      score,
		Total:      total,
		Percentage: percentage,
		Passed:     passed,
		TakenAt:    s.now().UTC(),
	}
	if err := s.results.InsertResult(ctx, &attempt); err != nil {
		if !errors.Is(err, domain.ErrAlreadyPassed) {
			return domain.SubmitResult{}, fmt.Errorf("insert result: %w", err)
		}
		// Another writer recorded a pass between our check and insert.
		prior, found, ferr := s.results.FindPassed(ctx, userID, quizID)
		if ferr != nil {
			return domain.SubmitResult{}, fmt.Errorf("find passed result: %w", ferr)
		}
		if !found {
			return domain.SubmitResult{}, fmt.Errorf("insert result: %w", err)
		}
		s.metrics.ObserveSubmission("cached", prior.Percentage)
		return cachedResult(prior), nil
	}

	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	s.metrics.ObserveSubmission(outcome, percentage)
	s.log.Info("quiz submitted",
		zap.Int64("user_id", userID),
		zap.Int64("quiz_id", quizID),
		zap.Int("score", score),
		zap.Int("total", total),
		zap.Float64("percentage", percentage),
		zap.Bool("passed", passed),
	)

	if _, _, err := s.RecomputeLevel(ctx, userID); err != nil {
		return domain.SubmitResult{}, err
	}

	return domain.SubmitResult{
		Score:      score,
		Total:      total,
		Percentage: percentage,
		Passed:     passed,
		CanRetry:   canRetry,
	}, nil
}

// RecomputeLevel derives the user's level from the mean of all attempts and stores it.
// It reports false when the user has no attempts, in which case nothing is written.
func (s *QuizService) RecomputeLevel(ctx context.Context, userID int64) (domain.Level, bool, error) {
	history, err := s.results.ListResultsByUser(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("list results: %w", err)
	}
	mean, ok := domain.MeanPercentage(history)
	if !ok {
		return "", false, nil
	}
	level := s.levels.LevelFor(mean)
	if err := s.users.UpdateLevel(ctx, userID, level); err != nil {
		return "", false, fmt.Errorf("update level: %w", err)
	}
	s.log.Debug("level recomputed", zap.Int64("user_id", userID), zap.Float64("mean", mean), zap.String("level", string(level)))
	return level, true, nil
}

// CreateQuiz stores a new quiz for a course the actor teaches (admins may use any course).
func (s *QuizService) CreateQuiz(ctx context.Context, actor domain.Actor, draft domain.QuizDraft) (domain.Quiz, error) {
	if err := s.authorizeCourse(ctx, actor, draft.CourseID); err != nil {
		return domain.Quiz{}, err
	}
	if err := validateDraft(draft); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.catalog.CreateQuiz(ctx, draft)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.log.Info("quiz created", zap.Int64("quiz_id", quiz.ID), zap.Int64("course_id", quiz.CourseID), zap.Int("questions", len(quiz.Questions)))
	return quiz, nil
}

// GetQuiz returns a quiz. Students get it without answer keys.
func (s *QuizService) GetQuiz(ctx context.Context, actor domain.Actor, quizID int64) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if actor.Role == domain.RoleStudent {
		return stripAnswerKeys(quiz), nil
	}
	return quiz, nil
}

func (s *QuizService) ListQuizzesByCourse(ctx context.Context, actor domain.Actor, courseID int64) ([]domain.Quiz, error) {
	quizzes, err := s.catalog.ListQuizzesByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	if actor.Role == domain.RoleStudent {
		for i := range quizzes {
			quizzes[i] = stripAnswerKeys(quizzes[i])
		}
	}
	return quizzes, nil
}

// DeleteQuiz removes a quiz with its questions, options and attempt results,
// then recomputes the level of every user who lost attempts.
func (s *QuizService) DeleteQuiz(ctx context.Context, actor domain.Actor, quizID int64) error {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.authorizeCourse(ctx, actor, quiz.CourseID); err != nil {
		return err
	}
	affected, err := s.catalog.DeleteQuiz(ctx, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		s.log.Warn("quiz cache invalidation failed", zap.Int64("quiz_id", quizID), zap.Error(err))
	}
	for _, userID := range affected {
		if err := s.resetLevel(ctx, userID); err != nil {
			s.log.Warn("level recompute after delete failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	s.log.Info("quiz deleted", zap.Int64("quiz_id", quizID), zap.Int64("by", actor.UserID), zap.Int("affected_users", len(affected)))
	return nil
}

// resetLevel recomputes a user's level; a user left without attempts goes back to beginner.
func (s *QuizService) resetLevel(ctx context.Context, userID int64) error {
	_, ok, err := s.RecomputeLevel(ctx, userID)
	if err != nil || ok {
		return err
	}
	if err := s.users.UpdateLevel(ctx, userID, domain.LevelBeginner); err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	return nil
}

// ListResults returns the user's attempts, newest first.
func (s *QuizService) ListResults(ctx context.Context, userID int64) ([]domain.AttemptResult, error) {
	results, err := s.results.ListResultsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TakenAt.After(results[j].TakenAt)
	})
	return results, nil
}

func (s *QuizService) authorizeCourse(ctx context.Context, actor domain.Actor, courseID int64) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleTeacher:
	default:
		return domain.ErrForbidden
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleTeacher && course.TeacherID != actor.UserID {
		return domain.ErrForbidden
	}
	return nil
}

func validateDraft(draft domain.QuizDraft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidQuiz)
	}
	if len(draft.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", domain.ErrInvalidQuiz)
	}
	for i, q := range draft.Questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("%w: question %d has no text", domain.ErrInvalidQuiz, i+1)
		}
		correct := false
		for _, opt := range q.Options {
			correct = correct || opt.Correct
		}
		if !correct {
			return fmt.Errorf("%w: question %d has no correct option", domain.ErrInvalidQuiz, i+1)
		}
	}
	return nil
}

func stripAnswerKeys(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		options := make([]domain.Option, len(q.Options))
		for j, opt := range q.Options {
			opt.Correct = false
			options[j] = opt
		}
		q.Options = options
		questions[i] = q
	}
	quiz.Questions = questions
	return quiz
}

func cachedResult(r domain.AttemptResult) domain.SubmitResult {
	return domain.SubmitResult{
		Score:      r.Score,
		Total:      r.Total,
		Percentage: r.Percentage,
		Passed:     r.Passed,
		CanRetry:   false,
	}
}

func submissionKey(userID, quizID int64) string {
	return "submit:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(quizID, 10)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(string, float64) {}
