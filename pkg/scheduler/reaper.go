package scheduler

import (
	"log"
	"time"
)

// reaperLoop drives retention cycles at the cleanup interval.
func (s *Scheduler) reaperLoop() {
	defer close(s.reaperStopCh)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	log.Println("[Cleanup] Reaper loop started")

	for {
		select {
		case <-ticker.C:
			s.runReaperCycle()
		case <-s.stopCh:
			log.Println("[Cleanup] Reaper loop stopped")
			return
		}
	}
}

// runReaperCycle evicts finished requests past the retention period and
// archives everything that left the registry since the last pass. Archive
// writes happen outside the scheduler lock.
func (s *Scheduler) runReaperCycle() {
	cutoff := time.Now().Add(-s.config.RetentionPeriod)

	s.mu.Lock()
	evicted := s.registry.evictBefore(cutoff)
	overflow := s.registry.drainOverflow()
	retained := len(s.registry.history)
	s.mu.Unlock()

	if len(evicted) == 0 && len(overflow) == 0 {
		return
	}

	log.Printf("[Cleanup] Evicted %d expired and %d overflow requests (%d retained)",
		len(evicted), len(overflow), retained)

	if s.archiver == nil {
		return
	}
	archived := 0
	for _, req := range append(overflow, evicted...) {
		if err := s.archiver.Store(req.Snapshot()); err != nil {
			log.Printf("[Cleanup] Failed to archive request %s: %v", req.ID, err)
			continue
		}
		archived++
	}
	if archived > 0 {
		log.Printf("[Cleanup] Archived %d evicted requests", archived)
	}
}
