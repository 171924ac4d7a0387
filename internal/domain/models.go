package domain

import "time"

// Role is the access role a user acts with.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Level is a user's proficiency, derived from quiz history.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// User is the account a quiz attempt is recorded against.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Role         Role      `json:"role"`
	Level        Level     `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a use case.
type Actor struct {
	UserID int64
	Role   Role
}

// Course owns quizzes. Only the fields the quiz engine needs are modelled.
type Course struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	TeacherID int64  `json:"teacher_id"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	Correct    bool   `json:"is_correct,omitempty"`
}

// Question is an MCQ question; at least one option is expected to be correct.
type Question struct {
	ID      int64    `json:"id"`
	QuizID  int64    `json:"quiz_id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Quiz is a collection of questions attached to a course.
type Quiz struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	CourseID  int64      `json:"course_id"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions"`
}

// OptionDraft, QuestionDraft and QuizDraft carry a quiz that has not been stored yet.
type OptionDraft struct {
	Text    string
	Correct bool
}

type QuestionDraft struct {
	Prompt  string
	Options []OptionDraft
}

type QuizDraft struct {
	Title     string
	CourseID  int64
	Questions []QuestionDraft
}

// AnswerSubmission is one (question, option) pick from a client.
type AnswerSubmission struct {
	QuestionID int64 `json:"question_id"`
	OptionID   int64 `json:"option_id"`
}

// AttemptResult is a persisted scoring outcome. At most one per (user, quiz) has Passed set.
type AttemptResult struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	QuizID     int64     `json:"quiz_id"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
	TakenAt    time.Time `json:"taken_at"`
}

// SubmitResult summarizes the outcome of a quiz submission.
type SubmitResult struct {
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
	CanRetry   bool    `json:"can_retry"`
}
