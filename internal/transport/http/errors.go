package http

import (
	"errors"
	"net/http"

	"elearning-quiz-service/internal/auth"
	"elearning-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrCourseNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizHasNoQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal failures from clients and logs them instead.
func errorMessage(log *zap.Logger, err error, status int) string {
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		return "internal server error"
	}
	return err.Error()
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	c.AbortWithStatusJSON(status, gin.H{"error": errorMessage(h.log, err, status)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
