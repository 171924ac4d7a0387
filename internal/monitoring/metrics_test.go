package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSubmission(t *testing.T) {
	m := New()
	m.ObserveSubmission("passed", 75)
	m.ObserveSubmission("failed", 50)
	m.ObserveSubmission("cached", 75)

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("passed")); got != 1 {
		t.Fatalf("expected 1 passed, got %v", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues("cached")); got != 1 {
		t.Fatalf("expected 1 cached, got %v", got)
	}
	if got := testutil.CollectAndCount(m.percentages); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/quizzes/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quizzes/1", nil))
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/quizzes/:id", "200")); got != 2 {
		t.Fatalf("expected 2 requests counted, got %v", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}
