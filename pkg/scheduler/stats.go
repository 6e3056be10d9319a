package scheduler

import (
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Canceled  int64 `json:"canceled"`
	TimedOut  int64 `json:"timed_out"`

	CurrentQueueSize int            `json:"current_queue_size"`
	LaneDepths       map[string]int `json:"lane_depths"`
	PeakQueueSize    int            `json:"peak_queue_size"`

	ActiveWorkers int     `json:"active_workers"`
	MaxWorkers    int     `json:"max_workers"`
	Utilization   float64 `json:"utilization"`

	CompletedLastHour    int     `json:"completed_last_hour"`
	AvgWaitSeconds       float64 `json:"avg_wait_seconds"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
}

// counters are the monotonic totals guarded by the scheduler lock.
type counters struct {
	submitted int64
	completed int64
	failed    int64
	canceled  int64
	timedOut  int64
}

// Stats assembles a statistics snapshot.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler) statsLocked() Stats {
	depths := s.lanes.depths()
	laneDepths := make(map[string]int, len(depths))
	queued := 0
	for p, n := range depths {
		laneDepths[p.String()] = n
		queued += n
	}

	st := Stats{
		Submitted:        s.counters.submitted,
		Completed:        s.counters.completed,
		Failed:           s.counters.failed,
		Canceled:         s.counters.canceled,
		TimedOut:         s.counters.timedOut,
		CurrentQueueSize: queued,
		LaneDepths:       laneDepths,
		PeakQueueSize:    s.peakQueue,
		ActiveWorkers:    s.registry.activeCount(),
		MaxWorkers:       s.config.MaxWorkers,
	}
	if s.config.MaxWorkers > 0 {
		st.Utilization = float64(st.ActiveWorkers) / float64(s.config.MaxWorkers)
	}

	hourAgo := time.Now().Add(-time.Hour)
	for _, req := range s.registry.history {
		if req.Status == models.StatusCompleted && req.CompletedAt != nil && req.CompletedAt.After(hourAgo) {
			st.CompletedLastHour++
		}
	}

	var waitSum, procSum time.Duration
	var waitN, procN int
	for _, req := range s.registry.recent(s.config.StatsWindow) {
		if req.WaitTime > 0 {
			waitSum += req.WaitTime
			waitN++
		}
		if req.ProcessingTime > 0 {
			procSum += req.ProcessingTime
			procN++
		}
	}
	if waitN > 0 {
		st.AvgWaitSeconds = (waitSum / time.Duration(waitN)).Seconds()
	}
	if procN > 0 {
		st.AvgProcessingSeconds = (procSum / time.Duration(procN)).Seconds()
	}

	return st
}
