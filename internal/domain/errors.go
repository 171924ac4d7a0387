package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizHasNoQuestions is returned when a quiz cannot be scored because it is empty.
	ErrQuizHasNoQuestions = errors.New("quiz has no questions")
	// ErrAlreadyPassed is returned by result stores when a second passing row would be written.
	ErrAlreadyPassed = errors.New("quiz already passed")
	// ErrInvalidQuiz rejects a quiz draft that cannot be scored fairly.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrCourseNotFound indicates the referenced course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when a username or email is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrForbidden is returned when the actor's role or ownership does not allow the action.
	ErrForbidden = errors.New("permission denied")
	// ErrInvalidCredentials covers unknown emails, wrong passwords and inactive accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
)
