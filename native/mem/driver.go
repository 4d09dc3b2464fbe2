package mem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/gdal-async/native"
)

const vsimemPrefix = "/vsimem/"

// Config holds configuration for driver creation
type Config struct {
	// MemoryLimitPages caps each dataset heap in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// DefaultBlockX and DefaultBlockY are used by Create when no block size
	// is given. 0 means full-width blocks of one row.
	DefaultBlockX int
	DefaultBlockY int
}

// Driver implements native.Library.
type Driver struct {
	ctx      context.Context
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	table    *handleTable
	cfg      Config

	mu    sync.Mutex
	files map[string]*file

	instances  atomic.Uint64
	violations atomic.Int64
	closed     atomic.Bool
}

var _ native.Library = (*Driver)(nil)

// file is a dataset at rest in the virtual filesystem.
type file struct {
	layers map[string]*layerData
	open   *dataset
	pixels []float64 // band-major; nil until first written back
	xsize  int
	ysize  int
	bands  int
	blockX int
	blockY int
	dtype  native.DataType
}

type dataset struct {
	file   *file
	heap   *heap
	path   string
	bands  []*band
	layers map[string]native.Handle
	guard  guard
	handle native.Handle
	access native.Access
	dirty  bool
}

type band struct {
	ds     *dataset
	base   uint32 // byte offset of the band in the heap
	handle native.Handle
	index  int
}

// New starts the driver's wasm runtime and compiles the heap kernel.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := compileKernel(ctx, rt)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("mem driver started", zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages))
	return &Driver{
		ctx:      ctx,
		runtime:  rt,
		compiled: compiled,
		table:    newHandleTable(),
		cfg:      cfg,
		files:    make(map[string]*file),
	}, nil
}

// Create creates a dataset and opens it for update.
func (d *Driver) Create(path string, xsize, ysize, nbands int, dt native.DataType, blockX, blockY int) (native.Handle, error) {
	if d.closed.Load() {
		return 0, failf(ErrObjectNull, "driver is shut down")
	}
	if xsize <= 0 || ysize <= 0 {
		return 0, failf(ErrIllegalArg, "Invalid dataset dimensions : %d x %d", xsize, ysize)
	}
	if nbands < 0 {
		return 0, failf(ErrIllegalArg, "Invalid band count : %d", nbands)
	}
	if dt.Size() == 0 {
		return 0, failf(ErrIllegalArg, "Invalid data type %s", dt)
	}
	if blockX <= 0 {
		blockX = d.cfg.DefaultBlockX
	}
	if blockY <= 0 {
		blockY = d.cfg.DefaultBlockY
	}
	if blockX <= 0 || blockX > xsize {
		blockX = xsize
	}
	if blockY <= 0 {
		blockY = 1
	}
	blockY = min(blockY, ysize)

	if path == "" {
		path = vsimemPrefix + uuid.NewString()
	}

	d.mu.Lock()
	if f, ok := d.files[path]; ok && f.open != nil {
		d.mu.Unlock()
		return 0, failf(ErrOpenFailed, "%s: file is open and cannot be recreated", path)
	}
	f := &file{
		layers: make(map[string]*layerData),
		xsize:  xsize,
		ysize:  ysize,
		bands:  nbands,
		blockX: blockX,
		blockY: blockY,
		dtype:  dt,
	}
	d.files[path] = f
	d.mu.Unlock()

	return d.open(path, f, native.Update)
}

// Open opens an existing dataset.
func (d *Driver) Open(path string, access native.Access) (native.Handle, error) {
	if d.closed.Load() {
		return 0, failf(ErrObjectNull, "driver is shut down")
	}
	d.mu.Lock()
	f, ok := d.files[path]
	d.mu.Unlock()
	if !ok {
		return 0, failf(ErrOpenFailed, "%s: No such file or directory", path)
	}
	return d.open(path, f, access)
}

func (d *Driver) open(path string, f *file, access native.Access) (native.Handle, error) {
	d.mu.Lock()
	if f.open != nil {
		d.mu.Unlock()
		return 0, failf(ErrOpenFailed, "%s: dataset already open", path)
	}
	ds := &dataset{file: f, path: path, access: access, layers: make(map[string]native.Handle)}
	f.open = ds
	d.mu.Unlock()

	bytes := uint64(f.xsize) * uint64(f.ysize) * uint64(f.bands) * 8
	name := fmt.Sprintf("dataset-%d", d.instances.Add(1))
	h, err := newHeap(d.ctx, d.runtime, d.compiled, name, bytes)
	if err != nil {
		d.mu.Lock()
		f.open = nil
		d.mu.Unlock()
		return 0, failf(ErrOutOfMemory, "%s: %v", path, err)
	}
	ds.heap = h
	if f.pixels != nil {
		h.restore(0, f.pixels)
	}

	ds.handle = d.table.create(kindDataset, ds)
	bandBytes := uint32(f.xsize * f.ysize * 8)
	for i := range f.bands {
		b := &band{ds: ds, index: i + 1, base: uint32(i) * bandBytes}
		b.handle = d.table.create(kindBand, b)
		ds.bands = append(ds.bands, b)
	}

	Logger().Debug("dataset opened",
		zap.String("path", path),
		zap.Uint64("handle", uint64(ds.handle)),
		zap.String("heap", name))
	return ds.handle, nil
}

// Close writes the dataset back to its file and frees every handle derived
// from it.
func (d *Driver) Close(h native.Handle) error {
	ds, err := d.dataset(h)
	if err != nil {
		return err
	}
	if err := d.enter(ds, "GDALClose"); err != nil {
		return err
	}
	defer d.leave(ds)

	if ds.dirty {
		d.writeBack(ds)
	}
	for _, lh := range ds.layers {
		d.table.drop(lh)
	}
	for _, b := range ds.bands {
		d.table.drop(b.handle)
	}
	d.table.drop(ds.handle)

	d.mu.Lock()
	ds.file.open = nil
	d.mu.Unlock()

	if err := ds.heap.close(d.ctx); err != nil {
		Logger().Warn("heap close failed", zap.String("path", ds.path), zap.Error(err))
	}
	Logger().Debug("dataset closed", zap.String("path", ds.path), zap.Uint64("handle", uint64(h)))
	return nil
}

func (d *Driver) writeBack(ds *dataset) {
	f := ds.file
	ds.file.pixels = ds.heap.snapshot(0, f.xsize*f.ysize*f.bands)
	ds.dirty = false
}

// Flush writes pending changes back to the dataset's file.
func (d *Driver) Flush(h native.Handle) error {
	ds, err := d.dataset(h)
	if err != nil {
		return err
	}
	if err := d.enter(ds, "GDALFlushCache"); err != nil {
		return err
	}
	defer d.leave(ds)
	if ds.dirty {
		d.writeBack(ds)
	}
	return nil
}

// Path returns the path a dataset was opened from.
func (d *Driver) Path(h native.Handle) (string, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return "", err
	}
	return ds.path, nil
}

// RasterSize returns the dataset's raster dimensions.
func (d *Driver) RasterSize(h native.Handle) (int, int, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, 0, err
	}
	return ds.file.xsize, ds.file.ysize, nil
}

// BandCount returns the number of raster bands.
func (d *Driver) BandCount(h native.Handle) (int, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, err
	}
	return len(ds.bands), nil
}

// Band returns the handle of band i, 1-based.
func (d *Driver) Band(h native.Handle, i int) (native.Handle, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, err
	}
	if i < 1 || i > len(ds.bands) {
		return 0, failf(ErrIllegalArg, "GDALGetRasterBand(): Illegal band #%d", i)
	}
	return ds.bands[i-1].handle, nil
}

// BandInfo describes a band.
func (d *Driver) BandInfo(h native.Handle) (native.BandInfo, error) {
	b, err := d.band(h)
	if err != nil {
		return native.BandInfo{}, err
	}
	f := b.ds.file
	return native.BandInfo{
		XSize:  f.xsize,
		YSize:  f.ysize,
		BlockX: f.blockX,
		BlockY: f.blockY,
		Index:  b.index,
		Type:   f.dtype,
	}, nil
}

// Exists reports whether path names a dataset in the virtual filesystem.
func (d *Driver) Exists(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[path]
	return ok
}

// Unlink removes a closed dataset from the virtual filesystem.
func (d *Driver) Unlink(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[path]
	if !ok {
		return failf(ErrOpenFailed, "%s: No such file or directory", path)
	}
	if f.open != nil {
		return failf(ErrNoWrite, "%s: file is open", path)
	}
	delete(d.files, path)
	return nil
}

// Handles returns the number of live native handles.
func (d *Driver) Handles() int {
	return d.table.len()
}

// Shutdown closes every open dataset and the wasm runtime.
func (d *Driver) Shutdown() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	var open []native.Handle
	for _, f := range d.files {
		if f.open != nil {
			open = append(open, f.open.handle)
		}
	}
	d.mu.Unlock()

	for _, h := range open {
		if err := d.Close(h); err != nil {
			Logger().Warn("close on shutdown failed", zap.Error(err))
		}
	}
	return d.runtime.Close(d.ctx)
}

func (d *Driver) dataset(h native.Handle) (*dataset, error) {
	v, ok := d.table.get(h, kindDataset)
	if !ok {
		return nil, failf(ErrObjectNull, "Pointer 'hDS' is NULL or invalid (handle %d)", h)
	}
	return v.(*dataset), nil
}

func (d *Driver) band(h native.Handle) (*band, error) {
	v, ok := d.table.get(h, kindBand)
	if !ok {
		return nil, failf(ErrObjectNull, "Pointer 'hBand' is NULL or invalid (handle %d)", h)
	}
	return v.(*band), nil
}

func (d *Driver) writable(ds *dataset, op string) error {
	if ds.access != native.Update {
		return failf(ErrNoWrite, "%s: %s opened in read-only mode", op, strings.TrimPrefix(ds.path, vsimemPrefix))
	}
	return nil
}
