package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/errors"
)

// Executor runs functions asynchronously. Submit must not block.
type Executor interface {
	Submit(fn func()) error
}

// Pool is a fixed set of worker goroutines fed from an unbounded FIFO.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}

	// Observability counters.
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	inFlight  atomic.Int64
	workers   int
}

// PoolStats provides a point-in-time snapshot of pool activity.
type PoolStats struct {
	Submitted  int64 // total tasks submitted
	Completed  int64 // tasks finished, including panicked ones
	Panicked   int64 // tasks that panicked past their own recovery
	InFlight   int64 // tasks currently executing
	QueueDepth int   // tasks waiting in the queue
	Workers    int   // worker count (fixed at creation)
}

// PoolOption configures a [Pool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	onMetrics       func(PoolStats)
	metricsInterval time.Duration
}

// WithPoolMetrics registers a periodic pool metrics callback that fires
// every interval until the pool is closed.
//
// Panics if interval <= 0 or fn is nil.
func WithPoolMetrics(interval time.Duration, fn func(PoolStats)) PoolOption {
	if interval <= 0 {
		panic("dispatch: WithPoolMetrics requires interval > 0")
	}
	if fn == nil {
		panic("dispatch: WithPoolMetrics requires non-nil callback")
	}
	return func(c *poolConfig) {
		c.onMetrics = fn
		c.metricsInterval = interval
	}
}

// NewPool creates a pool with n worker goroutines.
// Panics if n <= 0.
func NewPool(n int, opts ...PoolOption) *Pool {
	if n <= 0 {
		panic("dispatch: NewPool requires n > 0")
	}

	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		workers: n,
		stop:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for range n {
		go p.worker()
	}

	if cfg.onMetrics != nil {
		go func() {
			ticker := time.NewTicker(cfg.metricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					cfg.onMetrics(p.Stats())
				case <-p.stop:
					return
				}
			}
		}()
	}

	Logger().Debug("pool started", zap.Int("workers", n))
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.runTask(fn)
	}
}

func (p *Pool) runTask(fn func()) {
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
	}()
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			pe := newPanicError("", r)
			Logger().Error("task panicked",
				zap.Any("panic", r),
				zap.String("stack", pe.Stack()))
		}
	}()
	fn()
}

// Submit queues fn for execution. It never blocks.
// Returns a closed error if the pool has been closed.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.Closed(errors.PhaseDispatch, "pool")
	}
	p.queue = append(p.queue, fn)
	p.submitted.Add(1)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Stats returns a point-in-time snapshot of pool activity.
// Safe to call concurrently.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()
	return PoolStats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Panicked:   p.panicked.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: depth,
		Workers:    p.workers,
	}
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.workers }

// Close stops accepting new tasks, runs every task already queued and waits
// for the workers to exit. Safe to call multiple times, but not from a task.
func (p *Pool) Close() {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	if first {
		close(p.stop)
		Logger().Debug("pool closed", zap.Int64("completed", p.completed.Load()))
	}
}
