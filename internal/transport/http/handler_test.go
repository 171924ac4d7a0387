package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"elearning-quiz-service/internal/app"
	"elearning-quiz-service/internal/auth"
	"elearning-quiz-service/internal/domain"
	"elearning-quiz-service/internal/infra/memory"
	"elearning-quiz-service/internal/monitoring"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type testEnv struct {
	router  *gin.Engine
	store   *memory.Store
	issuer  *auth.Issuer
	student domain.User
	teacher domain.User
	course  domain.Course
	quiz    domain.Quiz
}

func newTestEnv(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := memory.NewStore()

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	student, _ := store.CreateUser(ctx, domain.User{Username: "stud", Email: "stud@example.com", PasswordHash: hash, Role: domain.RoleStudent, IsActive: true})
	teacher, _ := store.CreateUser(ctx, domain.User{Username: "prof", Email: "prof@example.com", PasswordHash: hash, Role: domain.RoleTeacher, IsActive: true})
	course, _ := store.CreateCourse(ctx, domain.Course{Title: "Go", TeacherID: teacher.ID})
	quiz, err := store.CreateQuiz(ctx, quizDraft(course.ID))
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	metrics := monitoring.New()
	service := app.NewQuizService(app.Repositories{
		Quizzes: memory.NewQuizRepository(store, time.Minute),
		Catalog: store,
		Results: store,
		Users:   store,
		Courses: store,
	}, memory.NewKeyedLocker(), app.WithMetrics(metrics))
	issuer := auth.NewIssuer("handler-test-secret", time.Hour)
	authSvc := auth.NewService(store, issuer, nil)

	h := NewHandler(service, authSvc, nil)
	router := NewRouter(h, NewWSHandler(service, nil, nil), metrics, cfg)
	return &testEnv{router: router, store: store, issuer: issuer, student: student, teacher: teacher, course: course, quiz: quiz}
}

func (e *testEnv) token(t *testing.T, u domain.User) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	form := url.Values{"email": {"stud@example.com"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var session auth.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil || session.AccessToken == "" {
		t.Fatalf("expected token, got %s (err=%v)", rec.Body, err)
	}

	rec = env.do(http.MethodGet, "/me/results", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("issued token should authenticate, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "stud@example.com", "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	if rec := env.do(http.MethodGet, "/me/results", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/me/results", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestSubmitOverHTTP(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	student := env.token(t, env.student)
	path := "/quizzes/" + strconv.FormatInt(env.quiz.ID, 10) + "/submit"

	rec := env.do(http.MethodPost, path, student, submitRequest{Answers: answers(env.quiz, 3)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got domain.SubmitResult
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	want := domain.SubmitResult{Score: 3, Total: 4, Percentage: 75, Passed: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if !strings.Contains(rec.Body.String(), `"can_retry":false`) {
		t.Fatalf("expected can_retry in body, got %s", rec.Body)
	}

	rec = env.do(http.MethodPost, path, student, submitRequest{Answers: answers(env.quiz, 0)})
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got != want {
		t.Fatalf("expected stored pass on resubmit, got %+v", got)
	}

	rec = env.do(http.MethodGet, "/me/results", student, nil)
	var results []resultResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &results)
	if len(results) != 1 || results[0].QuizID != env.quiz.ID || results[0].Percentage != 75 {
		t.Fatalf("expected one recorded attempt, got %s", rec.Body)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	student := env.token(t, env.student)

	empty, _ := env.store.CreateQuiz(context.Background(), domain.QuizDraft{Title: "Empty", CourseID: env.course.ID})

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"unknown quiz", "/quizzes/9999/submit", student, http.StatusNotFound},
		{"no questions", "/quizzes/" + strconv.FormatInt(empty.ID, 10) + "/submit", student, http.StatusUnprocessableEntity},
		{"teacher", "/quizzes/" + strconv.FormatInt(env.quiz.ID, 10) + "/submit", env.token(t, env.teacher), http.StatusForbidden},
		{"bad id", "/quizzes/abc/submit", student, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodPost, tc.path, tc.token, submitRequest{})
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, rec.Code, rec.Body)
		}
	}
}

func TestQuizCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	teacher := env.token(t, env.teacher)
	student := env.token(t, env.student)

	body := map[string]any{
		"title":     "Loops",
		"course_id": env.course.ID,
		"questions": []map[string]any{
			{"prompt": "for or while?", "options": []map[string]any{
				{"text": "for", "is_correct": true},
				{"text": "while"},
			}},
		},
	}
	if rec := env.do(http.MethodPost, "/quizzes", student, body); rec.Code != http.StatusForbidden {
		t.Fatalf("student create: expected 403, got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, "/quizzes", teacher, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("teacher create: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created domain.Quiz
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if len(created.Questions) != 1 || !created.Questions[0].Options[0].Correct {
		t.Fatalf("unexpected created quiz %s", rec.Body)
	}

	rec = env.do(http.MethodGet, "/quizzes/"+strconv.FormatInt(created.ID, 10), student, nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"is_correct"`) {
		t.Fatalf("student view must hide answer keys, got %d %s", rec.Code, rec.Body)
	}

	rec = env.do(http.MethodGet, "/quizzes/course/"+strconv.FormatInt(env.course.ID, 10), student, nil)
	var listed []domain.Quiz
	_ = json.Unmarshal(rec.Body.Bytes(), &listed)
	if rec.Code != http.StatusOK || len(listed) != 2 {
		t.Fatalf("expected two quizzes in course, got %d %s", rec.Code, rec.Body)
	}

	body["questions"] = []map[string]any{
		{"prompt": "no key", "options": []map[string]any{{"text": "a"}}},
	}
	if rec := env.do(http.MethodPost, "/quizzes", teacher, body); rec.Code != http.StatusBadRequest {
		t.Fatalf("quiz without correct option: expected 400, got %d", rec.Code)
	}

	path := "/quizzes/" + strconv.FormatInt(created.ID, 10)
	if rec := env.do(http.MethodDelete, path, teacher, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rec.Code, rec.Body)
	}
	if rec := env.do(http.MethodGet, path, teacher, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted quiz: expected 404, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	if rec := env.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body)
	}
	_ = env.do(http.MethodPost, "/quizzes/"+strconv.FormatInt(env.quiz.ID, 10)+"/submit", env.token(t, env.student), submitRequest{Answers: answers(env.quiz, 4)})

	rec := env.do(http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `quiz_submissions_total{outcome="passed"} 1`) {
		t.Fatalf("expected submission metric, got %s", rec.Body)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, RouterConfig{RateLimit: 1, Burst: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(http.MethodGet, "/healthz", "", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of two then 429, got %v", codes)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(rate.Limit(1), 1)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	l.get("10.0.0.1")
	l.get("10.0.0.2")
	clock = clock.Add(idleBucketTTL / 2)
	l.get("10.0.0.2")

	clock = clock.Add(idleBucketTTL / 2)
	l.get("10.0.0.3")
	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Fatalf("expected idle client to be evicted")
	}
	if len(l.clients) != 2 {
		t.Fatalf("expected active clients to survive the sweep, got %d buckets", len(l.clients))
	}
}

func quizDraft(courseID int64) domain.QuizDraft {
	draft := domain.QuizDraft{Title: "Basics", CourseID: courseID}
	for _, prompt := range []string{"q1", "q2", "q3", "q4"} {
		draft.Questions = append(draft.Questions, domain.QuestionDraft{
			Prompt:  prompt,
			Options: []domain.OptionDraft{{Text: "right", Correct: true}, {Text: "wrong"}},
		})
	}
	return draft
}

// answers answers the first n questions correctly and the rest wrongly.
func answers(quiz domain.Quiz, n int) []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		pick := q.Options[1].ID
		if i < n {
			pick = q.Options[0].ID
		}
		out = append(out, domain.AnswerSubmission{QuestionID: q.ID, OptionID: pick})
	}
	return out
}
