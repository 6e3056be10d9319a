package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

// Executor runs one analysis request. Implementations must honor context
// cancellation and the deadline derived from WorkerTimeout.
type Executor interface {
	Analyze(ctx context.Context, req models.RequestSnapshot) (*models.AnalysisResult, error)
}

// work is one dispatched execution unit. The context carries the request's
// cancellation; the snapshot is detached from scheduler state.
type work struct {
	ctx context.Context
	req models.RequestSnapshot
}

// completion is a worker's report back to the scheduler.
type completion struct {
	id       string
	workerID string
	result   *models.AnalysisResult
	err      error
}

// workerPool runs a fixed number of executor goroutines. All results flow
// through one completion channel so terminal handling stays single-consumer.
type workerPool struct {
	size     int
	executor Executor
	timeout  time.Duration
	workCh   chan work
	doneCh   chan completion
	wg       sync.WaitGroup
}

func newWorkerPool(size int, timeout time.Duration, executor Executor) *workerPool {
	return &workerPool{
		size:     size,
		executor: executor,
		timeout:  timeout,
		workCh:   make(chan work, size),
		doneCh:   make(chan completion, size),
	}
}

// start launches the worker goroutines.
func (p *workerPool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// submit hands a unit to the pool. Admission gating keeps at most size units
// in flight, so this never blocks.
func (p *workerPool) submit(w work) {
	p.workCh <- w
}

// close stops intake. Workers exit once the channel drains.
func (p *workerPool) close() {
	close(p.workCh)
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for w := range p.workCh {
		p.doneCh <- p.execute(w)
	}
}

// execute runs one unit under the configured deadline, converting executor
// panics into failures so a bad payload cannot take the worker down.
func (p *workerPool) execute(w work) (c completion) {
	c = completion{id: w.req.ID, workerID: w.req.WorkerID}
	defer func() {
		if r := recover(); r != nil {
			c.result = nil
			c.err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	ctx := w.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	c.result, c.err = p.executor.Analyze(ctx, w.req)
	return c
}
