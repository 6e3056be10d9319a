package models

import (
	"time"
)

// AnalysisRequest represents one unit of LLM-backed analysis work moving
// through the queue. Scheduler timing fields (WaitTime, ProcessingTime) are
// each written exactly once: WaitTime at dispatch, ProcessingTime at
// completion.
type AnalysisRequest struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Payload     string            `json:"payload"` // opaque reference, e.g. a file path
	Metadata    map[string]string `json:"metadata,omitempty"`
	Priority    Priority          `json:"priority"`
	Status      RequestStatus     `json:"status"`
	WorkerID    string            `json:"worker_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	BoostedAt   *time.Time        `json:"boosted_at,omitempty"`
	Boosts      int               `json:"boosts,omitempty"`
	Result      *AnalysisResult   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`

	WaitTime       time.Duration `json:"-"`
	ProcessingTime time.Duration `json:"-"`

	StateTransitions []StateTransition `json:"state_transitions,omitempty"`
}

// AnalysisResult is the executor's output. The scheduler stores it opaquely;
// Counters carry executor-populated resource usage (cache hits, token counts).
type AnalysisResult struct {
	Summary  string             `json:"summary,omitempty"`
	Model    string             `json:"model,omitempty"`
	Counters map[string]float64 `json:"counters,omitempty"`
}

// SubmitRequest is the API payload for creating a new analysis request
type SubmitRequest struct {
	Payload  string            `json:"payload"`
	UserID   string            `json:"user_id"`
	Priority string            `json:"priority,omitempty"` // "low", "normal", "high", "urgent"
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RequestSnapshot is a detached copy of a request returned to callers.
// Durations are reported in seconds.
type RequestSnapshot struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Payload           string            `json:"payload"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Priority          Priority          `json:"priority"`
	Status            RequestStatus     `json:"status"`
	WorkerID          string            `json:"worker_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	Boosts            int               `json:"boosts,omitempty"`
	WaitSeconds       float64           `json:"wait_seconds"`
	ProcessingSeconds float64           `json:"processing_seconds"`
	Result            *AnalysisResult   `json:"result,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// Snapshot returns a copy of the request safe to hand outside the scheduler
// lock. Maps are copied; timestamps are copied by value.
func (r *AnalysisRequest) Snapshot() RequestSnapshot {
	snap := RequestSnapshot{
		ID:                r.ID,
		UserID:            r.UserID,
		Payload:           r.Payload,
		Priority:          r.Priority,
		Status:            r.Status,
		WorkerID:          r.WorkerID,
		CreatedAt:         r.CreatedAt,
		Boosts:            r.Boosts,
		WaitSeconds:       r.WaitTime.Seconds(),
		ProcessingSeconds: r.ProcessingTime.Seconds(),
		Error:             r.Error,
	}
	if r.Metadata != nil {
		snap.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			snap.Metadata[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		snap.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		snap.CompletedAt = &t
	}
	snap.Result = r.Result.Clone()
	return snap
}

// Clone returns a detached copy of the result. Safe on a nil receiver.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{
		Summary: r.Summary,
		Model:   r.Model,
	}
	if r.Counters != nil {
		out.Counters = make(map[string]float64, len(r.Counters))
		for k, v := range r.Counters {
			out.Counters[k] = v
		}
	}
	return out
}

// Transition applies a validated status change and records it. It returns an
// error and leaves the request untouched when the change is not legal.
func (r *AnalysisRequest) Transition(to RequestStatus, reason string) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	r.StateTransitions = append(r.StateTransitions, StateTransition{
		From:      r.Status,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	r.Status = to
	return nil
}
