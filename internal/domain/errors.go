package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates the question does not exist or does not belong to the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSessionNotFound indicates no session matches the given token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrResultNotFound indicates no result has been stored for the session.
	ErrResultNotFound = errors.New("result not found")
	// ErrUnauthorized is returned for a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller does not own the session or lacks the admin role.
	ErrForbidden = errors.New("forbidden")
	// ErrQuizUnavailable is returned when starting a quiz outside its availability window.
	ErrQuizUnavailable = errors.New("quiz is not available")
	// ErrSessionExpired is returned by mutating calls on a completed or timed-out session.
	ErrSessionExpired = errors.New("session has expired")
	// ErrInvalidInput flags a malformed answer letter or missing required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBoundaryReached is returned when navigating past the first or last question.
	ErrBoundaryReached = errors.New("navigation boundary reached")
	// ErrAllQuestionsCompleted is returned when the cursor points past the question list.
	ErrAllQuestionsCompleted = errors.New("all questions completed")
	// ErrNotCompleted is returned when reading a result before the quiz was submitted.
	ErrNotCompleted = errors.New("quiz not yet submitted")
)
