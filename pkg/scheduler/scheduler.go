package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psilva81/inferq/pkg/models"
)

// Sink receives scheduler lifecycle events for metrics export. Hooks run
// under the scheduler lock and must not call back into the scheduler.
type Sink interface {
	RecordSubmit(priority models.Priority)
	RecordDispatch(priority models.Priority, wait time.Duration)
	RecordCompletion(priority models.Priority, outcome models.RequestStatus, processing time.Duration)
}

// Archiver receives finished requests as the reaper evicts them.
type Archiver interface {
	Store(snap models.RequestSnapshot) error
}

// Scheduler performs admission control and priority dispatch of analysis
// requests over a fixed worker pool. All state mutation happens under one
// lock; completions are funneled through a single consumer goroutine.
type Scheduler struct {
	config    *Config
	telemetry Telemetry
	sink      Sink
	archiver  Archiver
	governor  *ResourceGovernor
	pool      *workerPool

	mu          sync.Mutex
	lanes       *laneSet
	registry    *registry
	cancels     map[string]context.CancelFunc
	freeSlots   []string
	counters    counters
	peakQueue   int
	pausedUntil time.Time
	stopping    bool
	started     bool

	stopCh           chan struct{}
	dispatchStopCh   chan struct{}
	reaperStopCh     chan struct{}
	completionStopCh chan struct{}
}

// Option configures optional scheduler collaborators.
type Option func(*Scheduler)

// WithTelemetry wires a host resource probe into the admission governor.
func WithTelemetry(t Telemetry) Option {
	return func(s *Scheduler) { s.telemetry = t }
}

// WithSink wires a metrics sink.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithArchiver wires an archive sink for reaper-evicted requests.
func WithArchiver(a Archiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// New builds a scheduler. A nil config uses defaults; the executor is
// required.
func New(cfg *Config, executor Executor, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}

	s := &Scheduler{
		config:           cfg,
		lanes:            newLaneSet(),
		registry:         newRegistry(cfg.HistoryLimit),
		cancels:          make(map[string]context.CancelFunc),
		stopCh:           make(chan struct{}),
		dispatchStopCh:   make(chan struct{}),
		reaperStopCh:     make(chan struct{}),
		completionStopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.governor = NewResourceGovernor(cfg, s.telemetry)
	s.pool = newWorkerPool(cfg.MaxWorkers, cfg.WorkerTimeout, executor)
	for i := cfg.MaxWorkers; i >= 1; i-- {
		s.freeSlots = append(s.freeSlots, fmt.Sprintf("worker-%d", i))
	}

	return s, nil
}

// Start launches the worker pool, the dispatch and reaper loops and the
// completion consumer.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting (workers: %d, queue: %d, tick: %v)",
		s.config.MaxWorkers, s.config.MaxQueueSize, s.config.TickInterval)

	s.pool.start()
	go s.completionLoop()
	go s.dispatchLoop()
	go s.reaperLoop()
}

// Submit queues a new analysis request and returns its id. It never blocks
// on dispatch.
func (s *Scheduler) Submit(payload, userID string, priority models.Priority, metadata map[string]string) (string, error) {
	if !priority.Valid() {
		return "", ErrInvalidPriority
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return "", ErrShuttingDown
	}
	if s.lanes.size()+s.registry.activeCount() >= s.config.MaxQueueSize {
		return "", ErrQueueFull
	}

	req := &models.AnalysisRequest{
		ID:        uuid.New().String(),
		UserID:    userID,
		Payload:   payload,
		Metadata:  metadata,
		Priority:  priority,
		Status:    models.StatusQueued,
		CreatedAt: time.Now(),
	}
	s.lanes.push(req)
	s.counters.submitted++
	if depth := s.lanes.size(); depth > s.peakQueue {
		s.peakQueue = depth
	}
	if s.sink != nil {
		s.sink.RecordSubmit(priority)
	}

	log.Printf("[Scheduler] Queued request %s (priority=%s, depth=%d)",
		req.ID, priority, s.lanes.size())
	return req.ID, nil
}

// Status returns a snapshot of the request: active first, then retained,
// then still queued.
func (s *Scheduler) Status(id string) (models.RequestSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req, ok := s.registry.get(id); ok {
		return req.Snapshot(), nil
	}
	if req := s.lanes.find(id); req != nil {
		return req.Snapshot(), nil
	}
	return models.RequestSnapshot{}, ErrRequestNotFound
}

// Cancel stops a request best-effort. Queued requests are removed and marked
// canceled; in-flight requests get their context canceled and the completion
// funnel decides the final state. Finished or unknown requests return false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req := s.lanes.remove(id); req != nil {
		now := time.Now()
		if err := req.Transition(models.StatusCanceled, "canceled by user"); err != nil {
			log.Printf("[Scheduler] Cancel of queued request %s failed: %v", id, err)
			s.lanes.push(req)
			return false
		}
		req.CompletedAt = &now
		s.registry.complete(req)
		s.counters.canceled++
		if s.sink != nil {
			s.sink.RecordCompletion(req.Priority, models.StatusCanceled, 0)
		}
		log.Printf("[Scheduler] Canceled queued request %s", id)
		return true
	}

	if _, ok := s.registry.active[id]; ok {
		if cancel, ok := s.cancels[id]; ok {
			cancel()
		}
		log.Printf("[Scheduler] Cancellation signaled for in-flight request %s", id)
		return true
	}

	return false
}

// dispatchLoop drives dispatch cycles at the tick interval.
func (s *Scheduler) dispatchLoop() {
	defer close(s.dispatchStopCh)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Println("[Scheduler] Dispatch loop started")

	for {
		select {
		case <-ticker.C:
			s.runDispatchCycle()
		case <-s.stopCh:
			log.Println("[Scheduler] Dispatch loop stopped")
			return
		}
	}
}

// runDispatchCycle drains as much queued work as headroom allows. Expired
// requests are swept, boost-eligible requests are raised one tier without
// dispatching this cycle, and resource pressure backs the loop off.
func (s *Scheduler) runDispatchCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping || time.Now().Before(s.pausedUntil) {
		return
	}

	boosted := make(map[string]bool)
	for {
		if s.registry.activeCount() >= s.config.MaxWorkers {
			return
		}
		req := s.lanes.popHighest()
		if req == nil {
			return
		}

		// A request boosted in this cycle waits for the next one.
		if boosted[req.ID] {
			s.lanes.pushFront(req)
			return
		}

		now := time.Now()
		age := now.Sub(req.CreatedAt)
		if age > s.config.QueueTimeout {
			s.expireLocked(req, age, now)
			continue
		}

		if s.config.EnablePriorityBoosting && req.Priority < models.PriorityUrgent {
			ref := req.CreatedAt
			if req.BoostedAt != nil {
				ref = *req.BoostedAt
			}
			if now.Sub(ref) > s.config.BoostThreshold {
				from := req.Priority
				req.Priority = req.Priority.Next()
				req.Boosts++
				t := now
				req.BoostedAt = &t
				s.lanes.push(req)
				boosted[req.ID] = true
				log.Printf("[Scheduler] Boosted request %s %s -> %s after waiting %v",
					req.ID, from, req.Priority, age.Round(time.Second))
				continue
			}
		}

		if !s.governor.Admit() {
			s.lanes.pushFront(req)
			s.pausedUntil = now.Add(s.config.ResourceBackoff)
			log.Printf("[Scheduler] Resource pressure, pausing dispatch for %v", s.config.ResourceBackoff)
			return
		}

		s.dispatchLocked(req, now)
	}
}

// expireLocked finishes a request that outlived its queue timeout.
func (s *Scheduler) expireLocked(req *models.AnalysisRequest, age time.Duration, now time.Time) {
	if err := req.Transition(models.StatusTimedOut, "queue timeout exceeded"); err != nil {
		log.Printf("[Scheduler] Cannot expire request %s: %v", req.ID, err)
		return
	}
	req.Error = fmt.Sprintf("request expired after %v in queue (timeout %v)",
		age.Round(time.Second), s.config.QueueTimeout)
	req.CompletedAt = &now
	s.registry.complete(req)
	s.counters.timedOut++
	if s.sink != nil {
		s.sink.RecordCompletion(req.Priority, models.StatusTimedOut, 0)
	}
	log.Printf("[Scheduler] Request %s timed out in queue after %v", req.ID, age.Round(time.Second))
}

// dispatchLocked admits a request: records timing, assigns a worker slot and
// hands the unit to the pool.
func (s *Scheduler) dispatchLocked(req *models.AnalysisRequest, now time.Time) {
	if err := req.Transition(models.StatusProcessing, "dispatched"); err != nil {
		log.Printf("[Scheduler] Cannot dispatch request %s: %v", req.ID, err)
		return
	}
	t := now
	req.StartedAt = &t
	req.WaitTime = now.Sub(req.CreatedAt)
	req.WorkerID = s.takeSlotLocked()
	s.registry.activate(req)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[req.ID] = cancel
	s.pool.submit(work{ctx: ctx, req: req.Snapshot()})

	if s.sink != nil {
		s.sink.RecordDispatch(req.Priority, req.WaitTime)
	}
	log.Printf("[Scheduler] Dispatched request %s (priority=%s, waited %v) to %s",
		req.ID, req.Priority, req.WaitTime.Round(time.Millisecond), req.WorkerID)
}

func (s *Scheduler) takeSlotLocked() string {
	n := len(s.freeSlots)
	if n == 0 {
		log.Printf("[Scheduler] No free worker slot at dispatch (active=%d)", s.registry.activeCount())
		return "worker-0"
	}
	id := s.freeSlots[n-1]
	s.freeSlots = s.freeSlots[:n-1]
	return id
}

// completionLoop is the single consumer of worker results.
func (s *Scheduler) completionLoop() {
	defer close(s.completionStopCh)
	for c := range s.pool.doneCh {
		s.processCompletion(c)
	}
	log.Println("[Scheduler] Completion loop stopped")
}

// processCompletion applies one terminal transition. A panic while handling
// is recovered and the request is forced to failed so no worker slot leaks.
func (s *Scheduler) processCompletion(c completion) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] Completion handling panic for request %s: %v", c.id, r)
			s.forceFail(c.id, fmt.Sprintf("completion handling panic: %v", r))
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.registry.active[c.id]
	if !ok {
		log.Printf("[Scheduler] Completion for unknown request %s", c.id)
		return
	}
	delete(s.cancels, c.id)
	s.freeSlots = append(s.freeSlots, c.workerID)

	now := time.Now()
	var to models.RequestStatus
	var reason string
	switch {
	case c.err == nil:
		to = models.StatusCompleted
		reason = "executor finished"
		req.Result = c.result
	case errors.Is(c.err, context.Canceled):
		to = models.StatusCanceled
		reason = "canceled during execution"
		req.Error = c.err.Error()
	case errors.Is(c.err, context.DeadlineExceeded):
		to = models.StatusFailed
		reason = "worker timeout"
		req.Error = fmt.Sprintf("analysis exceeded worker timeout %v", s.config.WorkerTimeout)
	default:
		to = models.StatusFailed
		reason = "executor error"
		req.Error = c.err.Error()
	}

	if err := req.Transition(to, reason); err != nil {
		log.Printf("[Scheduler] Illegal completion transition for request %s: %v", c.id, err)
		return
	}
	req.CompletedAt = &now
	if req.StartedAt != nil {
		req.ProcessingTime = now.Sub(*req.StartedAt)
	}
	s.registry.complete(req)

	switch to {
	case models.StatusCompleted:
		s.counters.completed++
	case models.StatusCanceled:
		s.counters.canceled++
	case models.StatusFailed:
		s.counters.failed++
	}
	if s.sink != nil {
		s.sink.RecordCompletion(req.Priority, to, req.ProcessingTime)
	}
	log.Printf("[Scheduler] Request %s %s on %s (processing: %v)",
		req.ID, to, c.workerID, req.ProcessingTime.Round(time.Millisecond))
}

// forceFail closes out a request whose completion handling blew up.
func (s *Scheduler) forceFail(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.registry.active[id]
	if !ok {
		return
	}
	if !models.IsTerminalState(req.Status) {
		req.Status = models.StatusFailed
		req.Error = msg
	}
	if req.CompletedAt == nil {
		now := time.Now()
		req.CompletedAt = &now
	}
	s.registry.complete(req)
	s.counters.failed++
}

// Shutdown stops intake, cancels all queued requests, and waits up to
// timeout for in-flight work. It is safe to call more than once.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	started := s.started
	s.mu.Unlock()

	log.Println("[Scheduler] Shutting down...")
	close(s.stopCh)

	if started {
		// Loops must be down before the drain so no cycle races it.
		<-s.dispatchStopCh
		<-s.reaperStopCh
	}

	s.mu.Lock()
	drained := s.lanes.drain()
	now := time.Now()
	for _, req := range drained {
		if err := req.Transition(models.StatusCanceled, "scheduler shutdown"); err != nil {
			log.Printf("[Scheduler] Drain of request %s failed: %v", req.ID, err)
			continue
		}
		t := now
		req.CompletedAt = &t
		s.registry.complete(req)
		s.counters.canceled++
		if s.sink != nil {
			s.sink.RecordCompletion(req.Priority, models.StatusCanceled, 0)
		}
	}
	inflight := s.registry.activeCount()
	s.mu.Unlock()

	if len(drained) > 0 {
		log.Printf("[Scheduler] Canceled %d queued requests on shutdown", len(drained))
	}

	if !started {
		return nil
	}

	s.pool.close()
	if inflight > 0 {
		log.Printf("[Scheduler] Waiting up to %v for %d in-flight requests", timeout, inflight)
	}

	done := make(chan struct{})
	go func() {
		s.pool.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.mu.Lock()
		n := s.registry.activeCount()
		s.mu.Unlock()
		log.Printf("[Scheduler] Shutdown timeout - %d requests still in flight", n)
		return fmt.Errorf("shutdown timed out after %v with %d requests in flight", timeout, n)
	}

	close(s.pool.doneCh)
	<-s.completionStopCh
	log.Println("[Scheduler] Shutdown complete")
	return nil
}
