package gdal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/group"
	"github.com/wippyai/gdal-async/native"
	"github.com/wippyai/gdal-async/resource"
)

// CreateSpec describes a dataset to create.
type CreateSpec struct {
	// Path of the new dataset. Empty creates an anonymous dataset.
	Path   string          `yaml:"path"`
	XSize  int             `yaml:"width"`
	YSize  int             `yaml:"height"`
	Bands  int             `yaml:"bands"`
	Type   native.DataType `yaml:"-"`
	BlockX int             `yaml:"block_x"`
	BlockY int             `yaml:"block_y"`
}

// Dataset is the wrapper of an open native dataset. It anchors a resource
// group: every call on the dataset, its bands and its layers is serialized
// through that group.
//
// A Dataset that becomes unreachable is closed once its bands and layers
// are unreachable too.
type Dataset struct {
	c *dsCore
}

// dsCore is the state shared by a dataset's wrappers. It must never point
// to a wrapper.
type dsCore struct {
	rt       *Runtime
	node     *resource.Node
	g        *group.Group
	path     string
	h        native.Handle
	xsize    int
	ysize    int
	bands    int
	closeErr error
}

// Open opens the dataset at path.
func (r *Runtime) Open(ctx context.Context, path string, access native.Access) (*Dataset, error) {
	return r.OpenAsync(path, access).Await(ctx)
}

// OpenAsync opens the dataset at path on the worker pool. Opening runs
// outside any resource group since the dataset has none yet.
func (r *Runtime) OpenAsync(path string, access native.Access) *dispatch.Future[*Dataset] {
	if err := r.check(); err != nil {
		return dispatch.Rejected[*Dataset](r.loop, err)
	}
	return dispatch.Go(r.pool, r.loop, "open", func() (*Dataset, error) {
		h, err := r.lib.Open(path, access)
		if err != nil {
			return nil, nativeErr("open", path, err)
		}
		return r.adopt(h)
	})
}

// Create creates a dataset and opens it for update.
func (r *Runtime) Create(ctx context.Context, spec CreateSpec) (*Dataset, error) {
	return r.CreateAsync(spec).Await(ctx)
}

// CreateAsync creates a dataset on the worker pool.
func (r *Runtime) CreateAsync(spec CreateSpec) *dispatch.Future[*Dataset] {
	if err := r.check(); err != nil {
		return dispatch.Rejected[*Dataset](r.loop, err)
	}
	if spec.XSize <= 0 || spec.YSize <= 0 || spec.Bands < 0 {
		return dispatch.Rejected[*Dataset](r.loop, errors.InvalidInput(errors.PhaseValidate, "create",
			fmt.Sprintf("invalid dimensions %dx%d with %d bands", spec.XSize, spec.YSize, spec.Bands)))
	}
	if spec.Type == native.Unknown {
		spec.Type = native.Float64
	}
	return dispatch.Go(r.pool, r.loop, "create", func() (*Dataset, error) {
		h, err := r.lib.Create(spec.Path, spec.XSize, spec.YSize, spec.Bands, spec.Type, spec.BlockX, spec.BlockY)
		if err != nil {
			return nil, nativeErr("create", spec.Path, err)
		}
		return r.adopt(h)
	})
}

// adopt wraps a freshly opened handle. It runs on the task that opened it,
// so nothing else can touch the handle yet.
func (r *Runtime) adopt(h native.Handle) (*Dataset, error) {
	path, err := r.lib.Path(h)
	if err == nil {
		c := &dsCore{rt: r, h: h, path: path}
		c.xsize, c.ysize, err = r.lib.RasterSize(h)
		if err == nil {
			c.bands, err = r.lib.BandCount(h)
		}
		if err == nil {
			return r.register(c)
		}
	}
	_ = r.lib.Close(h)
	return nil, nativeErr("open", "", err)
}

func (r *Runtime) register(c *dsCore) (*Dataset, error) {
	c.g = r.newGroup(fmt.Sprintf("dataset#%d", c.h))
	lib, g := r.lib, c.g
	spec := resource.Spec{
		ID:    resource.Identity(c.h),
		Type:  resource.TypeDataset,
		Group: g.ID(),
		Destroy: func() {
			g.Teardown(func() {
				c.closeErr = nativeErr("close", c.path, lib.Close(c.h))
				r.forgetGroup(g.ID())
				Logger().Debug("dataset closed", zap.String("path", c.path), zap.Error(c.closeErr))
			})
		},
	}
	ds, err := resource.Resolve(r.reg, spec, func(n *resource.Node) *Dataset {
		c.node = n
		return &Dataset{c: c}
	})
	if err != nil {
		g.Teardown(func() {
			if cerr := lib.Close(c.h); cerr != nil {
				Logger().Error("close of unregistered dataset failed", zap.String("path", c.path), zap.Error(cerr))
			}
			r.forgetGroup(g.ID())
		})
		return nil, err
	}
	if ds.c != c {
		// The library handed out a handle that is still registered.
		g.Teardown(func() { r.forgetGroup(g.ID()) })
		return nil, errors.New(errors.PhaseRegistry, errors.KindInvalidInput).
			Resource(ds.c.path).
			Op("open").
			Detail("native handle %d is already in use", c.h).
			Build()
	}
	return ds, nil
}

// Path returns the path the dataset was opened from.
func (d *Dataset) Path() string { return d.c.path }

// RasterSize returns the raster dimensions. It reads cached metadata and
// never waits for the dataset's queue.
func (d *Dataset) RasterSize() (xsize, ysize int) { return d.c.xsize, d.c.ysize }

// BandCount returns the number of raster bands, from cached metadata.
func (d *Dataset) BandCount() int { return d.c.bands }

// Alive reports whether the native dataset is still open.
func (d *Dataset) Alive() bool { return d.c.node.Alive() }

// Node returns the dataset's registry node.
func (d *Dataset) Node() *resource.Node { return d.c.node }

// Group returns the dataset's resource group.
func (d *Dataset) Group() *group.Group { return d.c.g }

func (d *Dataset) String() string { return d.c.node.String() }

// Exec runs fn in the dataset's resource group with exclusive access to
// the dataset handle. It fails fast with errors.KindDestroyed if the
// dataset is closed.
func Exec[T any](d *Dataset, name string, fn func(lib native.Library, h native.Handle) (T, error)) *dispatch.Future[T] {
	return enqueue(d.c, d.c.node, name, func() (T, error) {
		return fn(d.c.rt.lib, d.c.h)
	})
}

// enqueue checks n synchronously and runs fn in c's group.
func enqueue[T any](c *dsCore, n *resource.Node, op string, fn func() (T, error)) *dispatch.Future[T] {
	if err := n.Check(op); err != nil {
		return dispatch.Rejected[T](c.rt.loop, err)
	}
	return group.Do(c.g, op, func() (T, error) {
		// The node may have died while the task was queued behind others.
		if err := n.Check(op); err != nil {
			var zero T
			return zero, err
		}
		return fn()
	})
}

// Band returns band i, 1-based.
func (d *Dataset) Band(ctx context.Context, i int) (*Band, error) {
	return d.BandAsync(i).Await(ctx)
}

// BandAsync returns band i, 1-based. The same band always yields the same
// *Band while it is reachable.
func (d *Dataset) BandAsync(i int) *dispatch.Future[*Band] {
	c := d.c
	if i < 1 || i > c.bands {
		return dispatch.Rejected[*Band](c.rt.loop, errors.OutOfBounds(errors.PhaseValidate, "band", i, c.bands))
	}
	return enqueue(c, c.node, "band", func() (*Band, error) {
		h, err := c.rt.lib.Band(c.h, i)
		if err != nil {
			return nil, nativeErr("band", d.String(), err)
		}
		info, err := c.rt.lib.BandInfo(h)
		if err != nil {
			return nil, nativeErr("band", d.String(), err)
		}
		return resource.Resolve(c.rt.reg, resource.Spec{
			ID:     resource.Identity(h),
			Type:   resource.TypeBand,
			Parent: c.node,
		}, func(n *resource.Node) *Band {
			return &Band{c: c, node: n, h: h, info: info}
		})
	})
}

// Flush writes pending changes to the dataset's file.
func (d *Dataset) Flush(ctx context.Context) error {
	return wait(ctx, d.FlushAsync())
}

// FlushAsync writes pending changes to the dataset's file.
func (d *Dataset) FlushAsync() *dispatch.Future[struct{}] {
	c := d.c
	return enqueue(c, c.node, "flush", func() (struct{}, error) {
		return struct{}{}, nativeErr("flush", d.String(), c.rt.lib.Flush(c.h))
	})
}

// Close closes the dataset. Its bands and layers die with it, queued
// operations fail with errors.KindTornDown, and the native close runs after
// the active operation finishes. Close waits for the native close; closing
// a closed dataset returns nil.
func (d *Dataset) Close(ctx context.Context) error {
	c := d.c
	c.rt.reg.Destroy(c.node)
	select {
	case <-c.g.Torn():
		return c.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(ctx context.Context, f *dispatch.Future[struct{}]) error {
	_, err := f.Await(ctx)
	return err
}
