package jobs

import "errors"

var (
	// ErrTerminal is returned when updating a completed or cancelled job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned when an update skips or reverses a step.
	ErrInvalidTransition = errors.New("invalid status transition")
)
