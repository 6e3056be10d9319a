package models

import (
	"fmt"
	"time"
)

// RequestStatus represents the lifecycle state of an analysis request
type RequestStatus string

const (
	StatusQueued     RequestStatus = "queued"     // Waiting in a priority lane
	StatusProcessing RequestStatus = "processing" // Dispatched to a worker
	StatusCompleted  RequestStatus = "completed"  // Finished successfully
	StatusFailed     RequestStatus = "failed"     // Executor returned an error
	StatusCanceled   RequestStatus = "canceled"   // Canceled before or during execution
	StatusTimedOut   RequestStatus = "timed_out"  // Expired in queue before dispatch
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[RequestStatus]map[RequestStatus]bool{
	StatusQueued: {
		StatusProcessing: true, // Queued → Processing (dispatcher admits)
		StatusCanceled:   true, // Queued → Canceled (user cancels or shutdown drain)
		StatusTimedOut:   true, // Queued → TimedOut (queue timeout exceeded)
	},
	StatusProcessing: {
		StatusCompleted: true, // Processing → Completed (executor succeeded)
		StatusFailed:    true, // Processing → Failed (executor errored)
		StatusCanceled:  true, // Processing → Canceled (context canceled mid-flight)
	},
	// Terminal states (no transitions allowed)
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCanceled:  {},
	StatusTimedOut:  {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to RequestStatus) error {
	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowedStates[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if the state admits no further transitions
func IsTerminalState(state RequestStatus) bool {
	return state == StatusCompleted || state == StatusFailed ||
		state == StatusCanceled || state == StatusTimedOut
}

// IsActiveState returns true if the request is being executed
func IsActiveState(state RequestStatus) bool {
	return state == StatusProcessing
}

// StateTransition tracks request state changes with timestamps
type StateTransition struct {
	From      RequestStatus `json:"from"`
	To        RequestStatus `json:"to"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason,omitempty"`
}
