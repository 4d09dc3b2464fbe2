package group

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
)

type state uint8

const (
	stateOpen state = iota
	stateTearingDown
	stateDestroyed
)

// Group is one serialization domain: a FIFO queue plus a single active slot.
type Group struct {
	ex   dispatch.Executor
	loop *dispatch.Loop
	name string
	id   uint64

	mu      sync.Mutex
	queue   []*task
	running bool
	state   state
	closeFn func()
	torn    chan struct{}

	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type task struct {
	// run executes the native call and settles the task's future.
	run func() error
	// fail settles the task's future without running it.
	fail func(error)
	name string
}

// Stats is a point-in-time snapshot of a group.
type Stats struct {
	Queued    int   // tasks waiting behind the active one
	Running   bool  // a task holds the active slot
	Enqueued  int64 // tasks accepted since creation
	Completed int64 // tasks that ran, successfully or not
	Failed    int64 // tasks that ran and returned an error
	Dropped   int64 // queued tasks failed by teardown or a refused submit
}

// Option configures a [Group].
type Option func(*Group)

// WithLoop delivers Then continuations of the group's futures on loop.
func WithLoop(loop *dispatch.Loop) Option {
	return func(g *Group) { g.loop = loop }
}

// WithName sets the name used in errors and logs.
func WithName(name string) Option {
	return func(g *Group) { g.name = name }
}

// New creates an open group executing on ex.
func New(id uint64, ex dispatch.Executor, opts ...Option) *Group {
	g := &Group{
		ex:   ex,
		id:   id,
		torn: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.name == "" {
		g.name = fmt.Sprintf("group#%d", id)
	}
	return g
}

// ID returns the group id.
func (g *Group) ID() uint64 { return g.id }

// Loop returns the loop continuations are delivered on, or nil.
func (g *Group) Loop() *dispatch.Loop { return g.loop }

func (g *Group) String() string { return g.name }

// Alive reports whether the group still accepts tasks.
func (g *Group) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == stateOpen
}

// Torn is closed once teardown has finished.
func (g *Group) Torn() <-chan struct{} { return g.torn }

// Stats returns a snapshot of the group's counters.
func (g *Group) Stats() Stats {
	g.mu.Lock()
	queued, running := len(g.queue), g.running
	g.mu.Unlock()
	return Stats{
		Queued:    queued,
		Running:   running,
		Enqueued:  g.enqueued.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
		Dropped:   g.dropped.Load(),
	}
}

// Do enqueues fn on g and returns its future. fn runs on a pool worker with
// the group held exclusively. If g is no longer open the returned future is
// already rejected with errors.KindDestroyed and fn never runs.
func Do[T any](g *Group, name string, fn func() (T, error)) *dispatch.Future[T] {
	f, settle := dispatch.NewFuture[T](g.loop)
	t := &task{
		name: name,
		run: func() error {
			v, err := dispatch.Call(name, fn)
			settle(v, err)
			return err
		},
		fail: func(err error) {
			var zero T
			settle(zero, err)
		},
	}
	if err := g.enqueue(t); err != nil {
		t.fail(err)
	}
	return f
}

func (g *Group) enqueue(t *task) error {
	g.mu.Lock()
	if g.state != stateOpen {
		g.mu.Unlock()
		return errors.Destroyed(errors.PhaseQueue, g.name, t.name)
	}
	g.enqueued.Add(1)
	if g.running {
		g.queue = append(g.queue, t)
		g.mu.Unlock()
		return nil
	}
	g.running = true
	g.mu.Unlock()

	g.start(t)
	return nil
}

// start hands t to the executor. A refused task is failed and the next one
// tried, so the active slot is never left claimed without a task.
func (g *Group) start(t *task) {
	for t != nil {
		err := g.ex.Submit(func() { g.exec(t) })
		if err == nil {
			return
		}
		g.dropped.Add(1)
		t.fail(errors.WithResource(err, g.name))
		t = g.next()
	}
}

func (g *Group) exec(t *task) {
	if err := t.run(); err != nil {
		g.failed.Add(1)
		Logger().Debug("task failed",
			zap.String("group", g.name),
			zap.String("op", t.name),
			zap.Error(err))
	}
	g.completed.Add(1)
	g.start(g.next())
}

// next pops the following task, or releases the active slot and finishes a
// pending teardown.
func (g *Group) next() *task {
	g.mu.Lock()
	if len(g.queue) > 0 {
		t := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		g.mu.Unlock()
		return t
	}
	g.running = false
	tearing := g.state == stateTearingDown
	g.mu.Unlock()

	if tearing {
		g.finishTeardown()
	}
	return nil
}

// Teardown destroys the group. Queued tasks fail with errors.KindTornDown;
// closeFn runs after the active task completes, with no other task running
// or able to start. Teardown does not block; the returned channel is closed
// when closeFn has returned. Later calls return the same channel and
// ignore their closeFn.
func (g *Group) Teardown(closeFn func()) <-chan struct{} {
	g.mu.Lock()
	if g.state != stateOpen {
		g.mu.Unlock()
		return g.torn
	}
	g.state = stateTearingDown
	g.closeFn = closeFn
	pending := g.queue
	g.queue = nil
	idle := !g.running
	g.mu.Unlock()

	for _, t := range pending {
		g.dropped.Add(1)
		t.fail(errors.TornDown(g.name, t.name))
	}
	if len(pending) > 0 {
		Logger().Debug("dropped pending tasks",
			zap.String("group", g.name),
			zap.Int("count", len(pending)))
	}

	if idle {
		// Run the close on a worker so Teardown never blocks on native code.
		if err := g.ex.Submit(g.finishTeardown); err != nil {
			g.finishTeardown()
		}
	}
	return g.torn
}

func (g *Group) finishTeardown() {
	g.mu.Lock()
	fn := g.closeFn
	g.closeFn = nil
	g.mu.Unlock()

	if fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger().Error("group close panicked",
						zap.String("group", g.name),
						zap.Any("panic", r))
				}
			}()
			fn()
		}()
	}

	g.mu.Lock()
	g.state = stateDestroyed
	g.mu.Unlock()
	close(g.torn)
}
