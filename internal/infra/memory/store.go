package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"elearning-quiz-service/internal/domain"
)

// Store is an in-memory implementation of the quiz, result, user and course stores.
// It backs tests and the demo mode of the server when no Postgres URL is configured.
type Store struct {
	mu      sync.RWMutex
	seq     int64
	now     func() time.Time
	users   map[int64]domain.User
	courses map[int64]domain.Course
	quizzes map[int64]domain.Quiz
	results []domain.AttemptResult
}

func NewStore() *Store {
	return &Store{
		now:     time.Now,
		users:   make(map[int64]domain.User),
		courses: make(map[int64]domain.Course),
		quizzes: make(map[int64]domain.Quiz),
	}
}

func (s *Store) nextIDLocked() int64 {
	s.seq++
	return s.seq
}

// LoadQuiz implements QuizLoader.
func (s *Store) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) CreateQuiz(_ context.Context, draft domain.QuizDraft) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[draft.CourseID]; !ok {
		return domain.Quiz{}, domain.ErrCourseNotFound
	}

	quiz := domain.Quiz{
		ID:        s.nextIDLocked(),
		Title:     draft.Title,
		CourseID:  draft.CourseID,
		CreatedAt: s.now().UTC(),
		Questions: make([]domain.Question, 0, len(draft.Questions)),
	}
	for _, qd := range draft.Questions {
		question := domain.Question{
			ID:      s.nextIDLocked(),
			QuizID:  quiz.ID,
			Prompt:  qd.Prompt,
			Options: make([]domain.Option, 0, len(qd.Options)),
		}
		for _, od := range qd.Options {
			question.Options = append(question.Options, domain.Option{
				ID:         s.nextIDLocked(),
				QuestionID: question.ID,
				Text:       od.Text,
				Correct:    od.Correct,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	s.quizzes[quiz.ID] = quiz
	return cloneQuiz(quiz), nil
}

// DeleteQuiz removes the quiz, its questions and options, and every attempt recorded against it.
// It returns the ids of users who lost attempts.
func (s *Store) DeleteQuiz(_ context.Context, quizID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)

	var affected []int64
	seen := make(map[int64]bool)
	kept := s.results[:0]
	for _, r := range s.results {
		if r.QuizID != quizID {
			kept = append(kept, r)
			continue
		}
		if !seen[r.UserID] {
			seen[r.UserID] = true
			affected = append(affected, r.UserID)
		}
	}
	s.results = kept
	return affected, nil
}

func (s *Store) ListQuizzesByCourse(_ context.Context, courseID int64) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quizzes := make([]domain.Quiz, 0)
	for _, q := range s.quizzes {
		if q.CourseID == courseID {
			quizzes = append(quizzes, cloneQuiz(q))
		}
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })
	return quizzes, nil
}

func (s *Store) FindPassed(_ context.Context, userID, quizID int64) (domain.AttemptResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.UserID == userID && r.QuizID == quizID && r.Passed {
			return r, true, nil
		}
	}
	return domain.AttemptResult{}, false, nil
}

// InsertResult enforces the same "one pass per user and quiz" rule as the Postgres partial index.
func (s *Store) InsertResult(_ context.Context, result *domain.AttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[result.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	if result.Passed {
		for _, r := range s.results {
			if r.UserID == result.UserID && r.QuizID == result.QuizID && r.Passed {
				return domain.ErrAlreadyPassed
			}
		}
	}
	result.ID = s.nextIDLocked()
	s.results = append(s.results, *result)
	return nil
}

func (s *Store) ListResultsByUser(_ context.Context, userID int64) ([]domain.AttemptResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AttemptResult, 0)
	for _, r := range s.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return domain.User{}, domain.ErrUserExists
		}
	}
	user.ID = s.nextIDLocked()
	if user.Level == "" {
		user.Level = domain.LevelBeginner
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(_ context.Context, userID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) UpdateLevel(_ context.Context, userID int64, level domain.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Level = level
	s.users[userID] = user
	return nil
}

func (s *Store) CreateCourse(_ context.Context, course domain.Course) (domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course.ID = s.nextIDLocked()
	s.courses[course.ID] = course
	return course, nil
}

func (s *Store) GetCourse(_ context.Context, courseID int64) (domain.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[courseID]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return course, nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]domain.Option(nil), question.Options...)
		questions[i] = question
	}
	q.Questions = questions
	return q
}
