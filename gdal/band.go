package gdal

import (
	"context"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/group"
	"github.com/wippyai/gdal-async/native"
	"github.com/wippyai/gdal-async/resource"
)

// Band is the wrapper of a raster band. A Band keeps its dataset open but
// not its *Dataset wrapper, which may be collected and rebuilt by
// [Band.Dataset].
type Band struct {
	c    *dsCore
	node *resource.Node
	info native.BandInfo
	h    native.Handle
}

// Size returns the band dimensions, from cached metadata.
func (b *Band) Size() (xsize, ysize int) { return b.info.XSize, b.info.YSize }

// BlockSize returns the native block dimensions, from cached metadata.
func (b *Band) BlockSize() (x, y int) { return b.info.BlockX, b.info.BlockY }

// DataType returns the pixel type, from cached metadata.
func (b *Band) DataType() native.DataType { return b.info.Type }

// Index returns the 1-based band number.
func (b *Band) Index() int { return b.info.Index }

// Alive reports whether the band may still be used.
func (b *Band) Alive() bool { return b.node.Alive() }

// Node returns the band's registry node.
func (b *Band) Node() *resource.Node { return b.node }

// Group returns the resource group of the band's dataset.
func (b *Band) Group() *group.Group { return b.c.g }

// Runtime returns the runtime the band belongs to.
func (b *Band) Runtime() *Runtime { return b.c.rt }

func (b *Band) String() string { return b.node.String() }

// Dataset returns the owning dataset.
func (b *Band) Dataset() (*Dataset, error) {
	c := b.c
	return resource.Wrap(c.rt.reg, c.node, func(*resource.Node) *Dataset {
		return &Dataset{c: c}
	})
}

// BlockWindow returns the window of block (bx, by), clipped at the raster
// edges.
func (b *Band) BlockWindow(bx, by int) (gdalasync.Window, error) {
	nx := (b.info.XSize + b.info.BlockX - 1) / b.info.BlockX
	ny := (b.info.YSize + b.info.BlockY - 1) / b.info.BlockY
	if bx < 0 || bx >= nx {
		return gdalasync.Window{}, errors.OutOfBounds(errors.PhaseValidate, "block", bx, nx)
	}
	if by < 0 || by >= ny {
		return gdalasync.Window{}, errors.OutOfBounds(errors.PhaseValidate, "block", by, ny)
	}
	x, y := bx*b.info.BlockX, by*b.info.BlockY
	return gdalasync.Window{
		X:      x,
		Y:      y,
		Width:  min(b.info.BlockX, b.info.XSize-x),
		Height: min(b.info.BlockY, b.info.YSize-y),
	}, nil
}

// ReadBlock reads block (bx, by) into buf in row-major order.
func (b *Band) ReadBlock(ctx context.Context, bx, by int, buf []float64) error {
	return wait(ctx, b.ReadBlockAsync(bx, by, buf))
}

// ReadBlockAsync reads block (bx, by) into buf in row-major order.
func (b *Band) ReadBlockAsync(bx, by int, buf []float64) *dispatch.Future[struct{}] {
	win, err := b.BlockWindow(bx, by)
	if err != nil {
		return dispatch.Rejected[struct{}](b.c.rt.loop, err)
	}
	return ReadAsync(b, win, buf)
}

// WriteBlock writes block (bx, by) from buf in row-major order.
func (b *Band) WriteBlock(ctx context.Context, bx, by int, buf []float64) error {
	return wait(ctx, b.WriteBlockAsync(bx, by, buf))
}

// WriteBlockAsync writes block (bx, by) from buf in row-major order.
func (b *Band) WriteBlockAsync(bx, by int, buf []float64) *dispatch.Future[struct{}] {
	win, err := b.BlockWindow(bx, by)
	if err != nil {
		return dispatch.Rejected[struct{}](b.c.rt.loop, err)
	}
	return WriteAsync(b, win, buf)
}

// Fill sets every pixel to value.
func (b *Band) Fill(ctx context.Context, value float64) error {
	return wait(ctx, b.FillAsync(value))
}

// FillAsync sets every pixel to value.
func (b *Band) FillAsync(value float64) *dispatch.Future[struct{}] {
	return enqueue(b.c, b.node, "fill", func() (struct{}, error) {
		return struct{}{}, nativeErr("fill", b.String(), b.c.rt.lib.Fill(b.h, value))
	})
}

// ComputeStatistics scans the band. progress may be nil.
func (b *Band) ComputeStatistics(ctx context.Context, progress ProgressFunc) (native.Statistics, error) {
	return b.ComputeStatisticsAsync(progress).Await(ctx)
}

// ComputeStatisticsAsync scans the band. progress may be nil.
func (b *Band) ComputeStatisticsAsync(progress ProgressFunc) *dispatch.Future[native.Statistics] {
	return enqueue(b.c, b.node, "statistics", func() (native.Statistics, error) {
		p := newProgress("statistics", progress)
		st, err := b.c.rt.lib.ComputeStatistics(b.h, p.native())
		if err = p.result("statistics", b.String(), err); err != nil {
			return native.Statistics{}, err
		}
		return st, nil
	})
}
