package http

import (
	"time"

	"elearning-quiz-service/internal/domain"
)

type loginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type optionRequest struct {
	Text    string `json:"text" binding:"required"`
	Correct bool   `json:"is_correct"`
}

type questionRequest struct {
	Prompt  string          `json:"prompt" binding:"required"`
	Options []optionRequest `json:"options" binding:"required,min=1,dive"`
}

type createQuizRequest struct {
	Title     string            `json:"title" binding:"required"`
	CourseID  int64             `json:"course_id" binding:"required"`
	Questions []questionRequest `json:"questions" binding:"required,min=1,dive"`
}

type submitRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

type resultResponse struct {
	ID         int64     `json:"id"`
	QuizID     int64     `json:"quiz_id"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	TakenAt    time.Time `json:"taken_at"`
}
