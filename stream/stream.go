package stream

import (
	"context"
	"io"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/gdal"
)

// Options configures a stream.
type Options struct {
	// BlockOptimize aligns chunks to the band's block rows.
	BlockOptimize bool `yaml:"block_optimize"`

	// HighWaterMark bounds the tasks a stream keeps in flight. 0 uses the
	// runtime default.
	HighWaterMark int `yaml:"high_water_mark"`

	// Flip walks the window bottom to top, rows stored bottom-up.
	Flip bool `yaml:"flip"`
}

// Chunk is a run of full-width rows of a window.
type Chunk[T gdalasync.Number] struct {
	Y     int // raster row of the chunk's top row
	Rows  int
	Width int
	Data  []T // Rows*Width elements, bottom-up when flipped
}

// Source yields chunks until io.EOF.
type Source[T gdalasync.Number] interface {
	Next(ctx context.Context) (Chunk[T], error)
}

// ForEach calls fn for every remaining chunk of src.
func ForEach[T gdalasync.Number](ctx context.Context, src Source[T], fn func(Chunk[T]) error) error {
	for {
		c, err := src.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

// ReadAll concatenates the data of every remaining chunk of src.
func ReadAll[T gdalasync.Number](ctx context.Context, src Source[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, src, func(c Chunk[T]) error {
		out = append(out, c.Data...)
		return nil
	})
	return out, err
}

func (o Options) hwm(b *gdal.Band) int {
	if o.HighWaterMark > 0 {
		return o.HighWaterMark
	}
	return b.Runtime().HighWaterMark()
}

// planFor validates win against b and builds its chunk plan.
func planFor(b *gdal.Band, win gdalasync.Window, opts Options, op string) (plan, error) {
	if err := b.Node().Check(op); err != nil {
		return plan{}, err
	}
	if win.Empty() {
		return plan{}, errors.InvalidInput(errors.PhaseValidate, op, "empty window "+win.String())
	}
	xs, ys := b.Size()
	if !win.Within(xs, ys) {
		return plan{}, errors.New(errors.PhaseValidate, errors.KindOutOfBounds).
			Resource(b.String()).
			Op(op).
			Detail("window %s outside %dx%d raster", win, xs, ys).
			Build()
	}
	_, by := b.BlockSize()
	return newPlan(win, by, opts.BlockOptimize, opts.Flip), nil
}
