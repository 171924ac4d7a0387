package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"elearning-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from the backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository caches full quizzes in Redis and falls back to a loader on cache miss.
// Layout:
//
//	HSET quiz:{quizID}:meta      title {title} course_id {courseID} created_at {rfc3339}
//	HSET quiz:{quizID}:questions {questionID} {question json with options}
//
// The meta hash marks presence, so a quiz without questions is cached as well.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.readCache(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.readCache(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		// a failed write only costs a reload next time
		_ = r.writeCache(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate removes both cache keys of a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID int64) error {
	if err := r.client.Del(ctx, metaKey(quizID), questionsKey(quizID)).Err(); err != nil {
		return fmt.Errorf("invalidate quiz %d: %w", quizID, err)
	}
	return nil
}

func (r *QuizRepository) readCache(ctx context.Context, quizID int64) (domain.Quiz, bool) {
	pipe := r.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, metaKey(quizID))
	questionsCmd := pipe.HGetAll(ctx, questionsKey(quizID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Quiz{}, false
	}
	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := buildQuizFromCache(quizID, meta, questionsCmd.Val())
	if err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) writeCache(ctx context.Context, quiz domain.Quiz) error {
	fields := make(map[string]interface{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return err
		}
		fields[strconv.FormatInt(q.ID, 10)] = raw
	}

	ttl := r.ttlWithJitter()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, metaKey(quiz.ID), questionsKey(quiz.ID))
	if len(fields) > 0 {
		pipe.HSet(ctx, questionsKey(quiz.ID), fields)
	}
	pipe.HSet(ctx, metaKey(quiz.ID),
		"title", quiz.Title,
		"course_id", strconv.FormatInt(quiz.CourseID, 10),
		"created_at", quiz.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if ttl > 0 {
		pipe.Expire(ctx, metaKey(quiz.ID), ttl)
		pipe.Expire(ctx, questionsKey(quiz.ID), ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func metaKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":meta"
}

func questionsKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":questions"
}

func buildQuizFromCache(quizID int64, meta, questions map[string]string) (domain.Quiz, error) {
	courseID, err := strconv.ParseInt(meta["course_id"], 10, 64)
	if err != nil {
		return domain.Quiz{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, meta["created_at"])
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:        quizID,
		Title:     meta["title"],
		CourseID:  courseID,
		CreatedAt: createdAt,
		Questions: make([]domain.Question, 0, len(questions)),
	}
	for _, raw := range questions {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	sort.Slice(quiz.Questions, func(i, j int) bool { return quiz.Questions[i].ID < quiz.Questions[j].ID })
	return quiz, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
