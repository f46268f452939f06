package domain

import "errors"

var (
	// ErrAttendanceNotFound means the student has no finalized result for the quiz.
	ErrAttendanceNotFound = errors.New("attendance record not found")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates an answered question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidChoice indicates an answer label outside A-D.
	ErrInvalidChoice = errors.New("invalid answer choice")
	// ErrSessionNotRunning is returned for answer or submit calls outside the Running phase.
	ErrSessionNotRunning = errors.New("quiz session is not running")
	// ErrQuizInProgress is returned when a caller tries to dismiss an unsubmitted attempt.
	ErrQuizInProgress = errors.New("quiz attempt still in progress")
	// ErrSessionClosed is returned for calls after the session has closed.
	ErrSessionClosed = errors.New("quiz session closed")
)
