package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/errors"
)

// Loop is a single goroutine that runs posted callbacks one at a time in the
// order they were posted.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
	onPanic func(any)
}

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithPanicHandler sets a function called with the value of every callback
// panic. Panics are always logged.
func WithPanicHandler(fn func(any)) LoopOption {
	return func(l *Loop) { l.onPanic = fn }
}

// NewLoop starts a loop goroutine.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.call(fn)
		}
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("callback panicked", zap.Any("panic", r))
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	fn()
}

// Post schedules fn on the loop. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.Closed(errors.PhaseDispatch, "loop")
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
	return nil
}

// Close stops the loop once the callbacks already posted have run. Wait on
// Done to observe the exit.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Signal()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }
