package scheduler

import "errors"

var (
	// ErrQueueFull is returned by Submit when pending work has reached
	// MaxQueueSize.
	ErrQueueFull = errors.New("queue is full")

	// ErrRequestNotFound is returned when no active, queued or retained
	// request matches the given id.
	ErrRequestNotFound = errors.New("request not found")

	// ErrShuttingDown is returned by Submit once shutdown has begun.
	ErrShuttingDown = errors.New("scheduler is shutting down")

	// ErrInvalidPriority is returned by Submit for a priority outside the
	// defined tiers.
	ErrInvalidPriority = errors.New("invalid priority")
)
