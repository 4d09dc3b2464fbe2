package stream

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/gdal"
)

// PixelFunc computes one output pixel from the named input pixels.
type PixelFunc[T gdalasync.Number] func(px map[string]T) T

// Calc evaluates fn over every pixel of out, reading the input bands chunk
// by chunk. All inputs must have the size of out. The map handed to fn is
// reused between pixels.
func Calc[T gdalasync.Number](ctx context.Context, inputs map[string]*gdal.Band, out *gdal.Band, fn PixelFunc[T], opts Options) error {
	if len(inputs) == 0 {
		return errors.InvalidInput(errors.PhaseValidate, "calc", "no inputs")
	}
	xs, ys := out.Size()
	win := gdalasync.Full(xs, ys)
	names := slices.Sorted(maps.Keys(inputs))

	// Inputs may have different block sizes; align them to out's.
	_, by := out.BlockSize()
	streams := make([]*ReadStream[T], 0, len(names))
	for _, name := range names {
		b := inputs[name]
		if x, y := b.Size(); x != xs || y != ys {
			return errors.InvalidInput(errors.PhaseValidate, "calc",
				"input "+name+" size differs from output")
		}
		rs, err := NewReadStream[T](b, win, opts)
		if err != nil {
			return errors.WithResource(err, name)
		}
		rs.plan = newPlan(win, by, opts.BlockOptimize, opts.Flip)
		streams = append(streams, rs)
	}

	px := make(map[string]T, len(names))
	mux, err := NewMux[T, T](streams, func(in [][]T, dst []T) error {
		for i := range dst {
			for j, name := range names {
				px[name] = in[j][i]
			}
			dst[i] = fn(px)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer mux.Close()

	ws, err := NewWriteStream[T](out, win, opts)
	if err != nil {
		return err
	}
	err = mux.ForEach(ctx, func(c Chunk[T]) error {
		return ws.Write(ctx, c.Data)
	})
	if cerr := ws.Close(ctx); err == nil {
		err = cerr
	}
	Logger().Debug("calc finished",
		zap.Strings("inputs", names),
		zap.Stringer("output", out),
		zap.Error(err))
	return err
}
