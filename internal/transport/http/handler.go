package http

import (
	"context"
	"net/http"
	"strconv"

	"elearning-quiz-service/internal/auth"
	"elearning-quiz-service/internal/domain"
	"elearning-quiz-service/internal/tracing"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// QuizUseCases is the application surface the transport drives.
type QuizUseCases interface {
	Submit(ctx context.Context, actor domain.Actor, quizID int64, answers []domain.AnswerSubmission) (domain.SubmitResult, error)
	CreateQuiz(ctx context.Context, actor domain.Actor, draft domain.QuizDraft) (domain.Quiz, error)
	GetQuiz(ctx context.Context, actor domain.Actor, quizID int64) (domain.Quiz, error)
	ListQuizzesByCourse(ctx context.Context, actor domain.Actor, courseID int64) ([]domain.Quiz, error)
	DeleteQuiz(ctx context.Context, actor domain.Actor, quizID int64) error
	ListResults(ctx context.Context, userID int64) ([]domain.AttemptResult, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Authenticate(token string) (domain.Actor, error)
}

type MetricsCollector interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

type RouterConfig struct {
	AllowedOrigins []string
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	Burst     int
}

type Handler struct {
	quizzes QuizUseCases
	auth    Authenticator
	log     *zap.Logger
}

func NewHandler(quizzes QuizUseCases, authn Authenticator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{quizzes: quizzes, auth: authn, log: log}
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(h *Handler, ws *WSHandler, metrics MetricsCollector, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), corsMiddleware(cfg.AllowedOrigins), tracing.GinMiddleware())
	if metrics != nil {
		r.Use(metrics.Middleware())
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.RateLimit > 0 {
		r.Use(newIPRateLimiter(rate.Limit(cfg.RateLimit), cfg.Burst).middleware())
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/auth/login", h.login)

	authed := r.Group("/", h.authenticate())
	authed.POST("/quizzes", requireRoles(domain.RoleTeacher, domain.RoleAdmin), h.createQuiz)
	authed.GET("/quizzes/course/:courseId", h.listQuizzes)
	authed.GET("/quizzes/:id", h.getQuiz)
	authed.DELETE("/quizzes/:id", requireRoles(domain.RoleTeacher, domain.RoleAdmin), h.deleteQuiz)
	authed.POST("/quizzes/:id/submit", requireRoles(domain.RoleStudent), h.submit)
	authed.GET("/me/results", h.myResults)
	if ws != nil {
		authed.GET("/ws", requireRoles(domain.RoleStudent), ws.ServeWS)
	}
	return r
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) createQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var draft domain.QuizDraft
	if err := copier.CopyWithOption(&draft, &req, copier.Option{DeepCopy: true}); err != nil {
		h.fail(c, err)
		return
	}

	quiz, err := h.quizzes.CreateQuiz(c.Request.Context(), actorFrom(c), draft)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *Handler) listQuizzes(c *gin.Context) {
	courseID, ok := idParam(c, "courseId")
	if !ok {
		return
	}
	quizzes, err := h.quizzes.ListQuizzesByCourse(c.Request.Context(), actorFrom(c), courseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *Handler) deleteQuiz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.quizzes.DeleteQuiz(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) submit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid answers payload")
		return
	}
	result, err := h.quizzes.Submit(c.Request.Context(), actorFrom(c), id, req.Answers)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) myResults(c *gin.Context) {
	results, err := h.quizzes.ListResults(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	if err := copier.Copy(&out, &results); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
