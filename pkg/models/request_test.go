package models

import (
	"testing"
	"time"
)

func TestRequestTransitionRecordsHistory(t *testing.T) {
	req := &AnalysisRequest{
		ID:        "req-1",
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}

	if err := req.Transition(StatusProcessing, "dispatched"); err != nil {
		t.Fatalf("queued -> processing failed: %v", err)
	}
	if err := req.Transition(StatusCompleted, "executor finished"); err != nil {
		t.Fatalf("processing -> completed failed: %v", err)
	}

	if req.Status != StatusCompleted {
		t.Errorf("status = %v, want %v", req.Status, StatusCompleted)
	}
	if len(req.StateTransitions) != 2 {
		t.Fatalf("recorded %d transitions, want 2", len(req.StateTransitions))
	}
	if req.StateTransitions[0].From != StatusQueued || req.StateTransitions[0].To != StatusProcessing {
		t.Errorf("first transition = %v -> %v, want queued -> processing",
			req.StateTransitions[0].From, req.StateTransitions[0].To)
	}
}

func TestRequestTransitionRejectsIllegal(t *testing.T) {
	req := &AnalysisRequest{ID: "req-2", Status: StatusCompleted}

	if err := req.Transition(StatusProcessing, "restart"); err == nil {
		t.Fatal("expected error re-opening a completed request, got nil")
	}
	if req.Status != StatusCompleted {
		t.Errorf("status mutated to %v on rejected transition", req.Status)
	}
	if len(req.StateTransitions) != 0 {
		t.Errorf("rejected transition was recorded: %v", req.StateTransitions)
	}
}

func TestSnapshotDetachesFromRequest(t *testing.T) {
	started := time.Now()
	req := &AnalysisRequest{
		ID:        "req-3",
		UserID:    "user-7",
		Payload:   "/data/reports/q3.pdf",
		Metadata:  map[string]string{"team": "billing"},
		Priority:  PriorityHigh,
		Status:    StatusProcessing,
		WorkerID:  "worker-2",
		CreatedAt: started.Add(-5 * time.Second),
		StartedAt: &started,
		WaitTime:  5 * time.Second,
		Result: &AnalysisResult{
			Summary:  "quarterly summary",
			Counters: map[string]float64{"cache_hits": 1},
		},
	}

	snap := req.Snapshot()

	if snap.WaitSeconds != 5.0 {
		t.Errorf("wait_seconds = %v, want 5.0", snap.WaitSeconds)
	}

	// Mutating the snapshot must not leak back into the live request.
	snap.Metadata["team"] = "ops"
	snap.Result.Counters["cache_hits"] = 99
	*snap.StartedAt = snap.StartedAt.Add(time.Hour)

	if req.Metadata["team"] != "billing" {
		t.Error("snapshot metadata aliases the live request")
	}
	if req.Result.Counters["cache_hits"] != 1 {
		t.Error("snapshot counters alias the live request")
	}
	if !req.StartedAt.Equal(started) {
		t.Error("snapshot StartedAt aliases the live request")
	}
}
