package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"elearning-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	store, quizID := seededStore(t)
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), quizID); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), quizID); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	if err := repo.Invalidate(context.Background(), quizID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), quizID); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	store, quizID := seededStore(t)
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), quizID)
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), quizID)
	if loader.calls != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryNotFound(t *testing.T) {
	repo := NewQuizRepository(NewStore(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), 42); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func seededStore(t *testing.T) (*Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := NewStore()
	teacher, err := store.CreateUser(ctx, domain.User{Username: "prof", Email: "prof@example.com", Role: domain.RoleTeacher, IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	course, err := store.CreateCourse(ctx, domain.Course{Title: "Arithmetic", TeacherID: teacher.ID})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	quiz, err := store.CreateQuiz(ctx, sampleDraft(course.ID))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return store, quiz.ID
}

func sampleDraft(courseID int64) domain.QuizDraft {
	return domain.QuizDraft{
		Title:    "Sums",
		CourseID: courseID,
		Questions: []domain.QuestionDraft{
			{
				Prompt: "What is 2 + 2?",
				Options: []domain.OptionDraft{
					{Text: "3"},
					{Text: "4", Correct: true},
				},
			},
		},
	}
}
