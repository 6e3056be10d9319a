package scheduler

import (
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

// registry tracks in-flight and finished requests. It is not safe for
// concurrent use; callers hold the scheduler lock.
type registry struct {
	active    map[string]*models.AnalysisRequest
	completed map[string]*models.AnalysisRequest

	// history holds finished requests in completion order. It shares
	// membership with the completed map and is capped at historyLimit;
	// overflow waits for the reaper to archive it.
	history      []*models.AnalysisRequest
	historyLimit int
	overflow     []*models.AnalysisRequest
}

func newRegistry(historyLimit int) *registry {
	return &registry{
		active:       make(map[string]*models.AnalysisRequest),
		completed:    make(map[string]*models.AnalysisRequest),
		historyLimit: historyLimit,
	}
}

// activate records a request as dispatched.
func (r *registry) activate(req *models.AnalysisRequest) {
	r.active[req.ID] = req
}

// activeCount returns the number of requests currently executing.
func (r *registry) activeCount() int {
	return len(r.active)
}

// get looks a request up in the active map, then the completed map.
func (r *registry) get(id string) (*models.AnalysisRequest, bool) {
	if req, ok := r.active[id]; ok {
		return req, true
	}
	if req, ok := r.completed[id]; ok {
		return req, true
	}
	return nil, false
}

// complete moves a request into the finished collection, evicting the oldest
// entry when the cap is reached. The request must already carry its terminal
// status and CompletedAt.
func (r *registry) complete(req *models.AnalysisRequest) {
	delete(r.active, req.ID)
	r.completed[req.ID] = req
	r.history = append(r.history, req)

	for len(r.history) > r.historyLimit {
		oldest := r.history[0]
		r.history = r.history[1:]
		delete(r.completed, oldest.ID)
		r.overflow = append(r.overflow, oldest)
		if len(r.overflow) > r.historyLimit {
			r.overflow = r.overflow[1:]
		}
	}
}

// evictBefore removes finished requests whose completion predates the cutoff
// and returns them oldest first.
func (r *registry) evictBefore(cutoff time.Time) []*models.AnalysisRequest {
	n := 0
	for n < len(r.history) {
		req := r.history[n]
		if req.CompletedAt == nil || !req.CompletedAt.Before(cutoff) {
			break
		}
		delete(r.completed, req.ID)
		n++
	}
	if n == 0 {
		return nil
	}
	evicted := r.history[:n:n]
	r.history = r.history[n:]
	return evicted
}

// drainOverflow hands back requests dropped by the history cap since the last
// reaper pass.
func (r *registry) drainOverflow() []*models.AnalysisRequest {
	out := r.overflow
	r.overflow = nil
	return out
}

// recent returns up to n of the most recent finished requests, oldest first.
func (r *registry) recent(n int) []*models.AnalysisRequest {
	if n <= 0 || len(r.history) == 0 {
		return nil
	}
	if n > len(r.history) {
		n = len(r.history)
	}
	return r.history[len(r.history)-n:]
}
