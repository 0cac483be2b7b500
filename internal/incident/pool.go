package incident

import (
	"context"
	"errors"
	"sync"

	"github.com/linnemanlabs/go-core/log"
)

// ErrQueueFull is returned by Submit when the task queue has no room left.
// Callers surface this as a failed delegation rather than blocking the
// webhook request.
var ErrQueueFull = errors.New("incident: enrichment queue full")

const (
	defaultWorkers    = 5
	defaultQueueDepth = 32
)

// Pool runs enrichment tasks on a fixed set of workers with a bounded
// queue. Tasks receive a fresh background-derived context so they outlive
// the webhook request that delegated them.
type Pool struct {
	tasks  chan func(context.Context)
	wg     sync.WaitGroup
	logger log.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers and returns a ready Pool. Non-positive workers or
// queueDepth fall back to defaults.
func NewPool(workers, queueDepth int, logger log.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	if logger == nil {
		logger = log.Nop()
	}

	p := &Pool{
		tasks:  make(chan func(context.Context), queueDepth),
		logger: logger,
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Submit enqueues a task for background execution. It never blocks: when
// the queue is full it returns ErrQueueFull immediately.
func (p *Pool) Submit(task func(context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("incident: pool stopped")
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight tasks to drain, up to the
// context deadline.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func(context.Context)) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn(ctx, "enrichment task panicked", "panic", r)
		}
	}()
	task(ctx)
}
