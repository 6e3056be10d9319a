package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

func finishedRequest(id string, completedAt time.Time) *models.AnalysisRequest {
	return &models.AnalysisRequest{
		ID:          id,
		Status:      models.StatusCompleted,
		CreatedAt:   completedAt.Add(-time.Minute),
		CompletedAt: &completedAt,
	}
}

func TestRegistryActivateAndComplete(t *testing.T) {
	r := newRegistry(10)
	req := &models.AnalysisRequest{ID: "a", Status: models.StatusProcessing}

	r.activate(req)
	if r.activeCount() != 1 {
		t.Fatalf("activeCount = %d, want 1", r.activeCount())
	}
	if got, ok := r.get("a"); !ok || got.ID != "a" {
		t.Fatal("get(a) did not find the active request")
	}

	now := time.Now()
	req.Status = models.StatusCompleted
	req.CompletedAt = &now
	r.complete(req)

	if r.activeCount() != 0 {
		t.Errorf("activeCount after complete = %d, want 0", r.activeCount())
	}
	if got, ok := r.get("a"); !ok || got.Status != models.StatusCompleted {
		t.Error("completed request not reachable via get")
	}
	if len(r.history) != 1 {
		t.Errorf("history length = %d, want 1", len(r.history))
	}
}

func TestRegistryHistoryCap(t *testing.T) {
	r := newRegistry(3)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		r.complete(finishedRequest(fmt.Sprintf("req-%d", i), now))
	}

	if len(r.history) != 3 {
		t.Fatalf("history length = %d, want 3", len(r.history))
	}
	if r.history[0].ID != "req-3" || r.history[2].ID != "req-5" {
		t.Errorf("history window = [%s..%s], want [req-3..req-5]",
			r.history[0].ID, r.history[2].ID)
	}

	// Capped-out entries leave the completed map and wait for archiving.
	if _, ok := r.get("req-1"); ok {
		t.Error("req-1 should have been evicted by the cap")
	}
	overflow := r.drainOverflow()
	if len(overflow) != 2 {
		t.Fatalf("overflow length = %d, want 2", len(overflow))
	}
	if overflow[0].ID != "req-1" || overflow[1].ID != "req-2" {
		t.Errorf("overflow = [%s, %s], want [req-1, req-2]", overflow[0].ID, overflow[1].ID)
	}
	if second := r.drainOverflow(); second != nil {
		t.Errorf("second drain returned %d entries, want none", len(second))
	}
}

func TestRegistryEvictBefore(t *testing.T) {
	r := newRegistry(10)
	now := time.Now()
	r.complete(finishedRequest("old-1", now.Add(-48*time.Hour)))
	r.complete(finishedRequest("old-2", now.Add(-25*time.Hour)))
	r.complete(finishedRequest("fresh", now.Add(-time.Hour)))

	evicted := r.evictBefore(now.Add(-24 * time.Hour))
	if len(evicted) != 2 {
		t.Fatalf("evicted %d entries, want 2", len(evicted))
	}
	if evicted[0].ID != "old-1" || evicted[1].ID != "old-2" {
		t.Errorf("evicted = [%s, %s], want [old-1, old-2]", evicted[0].ID, evicted[1].ID)
	}
	if _, ok := r.get("old-1"); ok {
		t.Error("old-1 still reachable after eviction")
	}
	if _, ok := r.get("fresh"); !ok {
		t.Error("fresh entry was evicted")
	}
	if len(r.history) != 1 {
		t.Errorf("history length = %d, want 1", len(r.history))
	}
}

func TestRegistryRecent(t *testing.T) {
	r := newRegistry(10)
	now := time.Now()
	for i := 1; i <= 4; i++ {
		r.complete(finishedRequest(fmt.Sprintf("req-%d", i), now))
	}

	recent := r.recent(2)
	if len(recent) != 2 {
		t.Fatalf("recent(2) length = %d, want 2", len(recent))
	}
	if recent[0].ID != "req-3" || recent[1].ID != "req-4" {
		t.Errorf("recent(2) = [%s, %s], want [req-3, req-4]", recent[0].ID, recent[1].ID)
	}
	if got := r.recent(100); len(got) != 4 {
		t.Errorf("recent(100) length = %d, want 4", len(got))
	}
	if got := r.recent(0); got != nil {
		t.Errorf("recent(0) = %v, want nil", got)
	}
}
