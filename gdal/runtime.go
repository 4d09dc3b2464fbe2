package gdal

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/group"
	"github.com/wippyai/gdal-async/native"
	"github.com/wippyai/gdal-async/native/mem"
	"github.com/wippyai/gdal-async/resource"
)

// Runtime ties a native library to a registry, a worker pool and a
// completion loop. All wrappers created through one Runtime share them.
type Runtime struct {
	lib     native.Library
	reg     *resource.Registry
	pool    *dispatch.Pool
	loop    *dispatch.Loop
	cfg     Config
	ownsLib bool

	mu     sync.Mutex
	groups map[uint64]*group.Group
	nextID atomic.Uint64
	closed atomic.Bool
}

// Stats is a snapshot of a runtime.
type Stats struct {
	Pool      dispatch.PoolStats
	Live      int   // live registry nodes
	Created   int64 // nodes ever created
	Destroyed int64 // nodes ever destroyed
	Groups    int   // open resource groups
}

// New creates a runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
		resource.SetLogger(cfg.Logger.Named("resource"))
		dispatch.SetLogger(cfg.Logger.Named("dispatch"))
		group.SetLogger(cfg.Logger.Named("group"))
		mem.SetLogger(cfg.Logger.Named("mem"))
	}

	r := &Runtime{
		lib:    cfg.Library,
		reg:    resource.NewRegistry(),
		cfg:    cfg,
		groups: make(map[uint64]*group.Group),
	}
	if r.lib == nil {
		drv, err := mem.New(ctx, mem.Config{
			MemoryLimitPages: cfg.MemoryLimitPages,
			DefaultBlockX:    cfg.BlockX,
			DefaultBlockY:    cfg.BlockY,
		})
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindNativeFailure, err, "start in-memory driver")
		}
		r.lib = drv
		r.ownsLib = true
	}

	r.pool = dispatch.NewPool(cfg.Workers)
	r.loop = dispatch.NewLoop()
	if cfg.Logger != nil {
		r.reg.Subscribe(resource.NewLogObserver(cfg.Logger.Named("resource")))
	}

	Logger().Debug("runtime started",
		zap.Int("workers", cfg.Workers),
		zap.Int("high_water_mark", cfg.HighWaterMark))
	return r, nil
}

// Library returns the native library.
func (r *Runtime) Library() native.Library { return r.lib }

// Registry returns the handle registry.
func (r *Runtime) Registry() *resource.Registry { return r.reg }

// Pool returns the worker pool.
func (r *Runtime) Pool() *dispatch.Pool { return r.pool }

// Loop returns the loop Then continuations are delivered on.
func (r *Runtime) Loop() *dispatch.Loop { return r.loop }

// HighWaterMark returns the default stream backpressure threshold.
func (r *Runtime) HighWaterMark() int { return r.cfg.HighWaterMark }

// Stats returns a snapshot of the runtime.
func (r *Runtime) Stats() Stats {
	created, destroyed := r.reg.Stats()
	r.mu.Lock()
	groups := len(r.groups)
	r.mu.Unlock()
	return Stats{
		Pool:      r.pool.Stats(),
		Live:      r.reg.Len(),
		Created:   created,
		Destroyed: destroyed,
		Groups:    groups,
	}
}

func (r *Runtime) newGroup(name string) *group.Group {
	id := r.nextID.Add(1)
	g := group.New(id, r.pool, group.WithLoop(r.loop), group.WithName(name))
	r.mu.Lock()
	r.groups[id] = g
	r.mu.Unlock()
	return g
}

func (r *Runtime) forgetGroup(id uint64) {
	r.mu.Lock()
	delete(r.groups, id)
	r.mu.Unlock()
}

// Close destroys every open dataset, waits for their native close to
// finish and stops the pool and the loop. The in-memory driver is shut down
// if the runtime started it.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.reg.Close()

	r.mu.Lock()
	pending := make([]*group.Group, 0, len(r.groups))
	for _, g := range r.groups {
		pending = append(pending, g)
	}
	r.mu.Unlock()
	for _, g := range pending {
		// Groups whose dataset never got a wrapper are torn down here.
		<-g.Teardown(nil)
	}

	r.pool.Close()
	r.loop.Close()
	<-r.loop.Done()

	if r.ownsLib {
		if err := r.lib.Shutdown(); err != nil {
			return errors.NativeFailure("shutdown", err)
		}
	}
	Logger().Debug("runtime closed")
	return nil
}

func (r *Runtime) check() error {
	if r.closed.Load() {
		return errors.Closed(errors.PhaseDispatch, "runtime")
	}
	return nil
}

// nativeErr wraps an error returned by the library, keeping its message.
func nativeErr(op, res string, err error) error {
	if err == nil {
		return nil
	}
	if errors.KindOf(err) != "" {
		return err
	}
	e := errors.NativeFailure(op, err)
	e.Resource = res
	return e
}
