package gdal

import (
	"context"
	"fmt"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/native"
)

// IOOption configures a raster read or write.
type IOOption func(*ioConfig)

type ioConfig struct {
	progress ProgressFunc
	layout   gdalasync.Layout
}

// WithLayout addresses the buffer through l instead of packed rows.
func WithLayout(l gdalasync.Layout) IOOption {
	return func(c *ioConfig) { c.layout = l }
}

// WithProgress reports progress after every transferred row.
func WithProgress(fn ProgressFunc) IOOption {
	return func(c *ioConfig) { c.progress = fn }
}

// Read reads win into buf.
func Read[T gdalasync.Number](ctx context.Context, b *Band, win gdalasync.Window, buf []T, opts ...IOOption) error {
	return wait(ctx, ReadAsync(b, win, buf, opts...))
}

// ReadAsync reads win into buf. The window and buffer are validated before
// the read is queued. buf must not be accessed until the future settles.
func ReadAsync[T gdalasync.Number](b *Band, win gdalasync.Window, buf []T, opts ...IOOption) *dispatch.Future[struct{}] {
	return rasterIO(b, native.Read, win, buf, opts)
}

// Write writes buf into win.
func Write[T gdalasync.Number](ctx context.Context, b *Band, win gdalasync.Window, buf []T, opts ...IOOption) error {
	return wait(ctx, WriteAsync(b, win, buf, opts...))
}

// WriteAsync writes buf into win. Values are converted to the band's data
// type by the library. buf must not be modified until the future settles.
func WriteAsync[T gdalasync.Number](b *Band, win gdalasync.Window, buf []T, opts ...IOOption) *dispatch.Future[struct{}] {
	return rasterIO(b, native.Write, win, buf, opts)
}

func rasterIO[T gdalasync.Number](b *Band, flag native.RWFlag, win gdalasync.Window, buf []T, opts []IOOption) *dispatch.Future[struct{}] {
	op := flag.String()
	cfg := ioConfig{layout: gdalasync.Packed(win.Width)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := checkIO(b, win, len(buf), cfg.layout); err != nil {
		return dispatch.Rejected[struct{}](b.c.rt.loop, errors.WithResource(err, b.String()))
	}

	return enqueue(b.c, b.node, op, func() (struct{}, error) {
		p := newProgress(op, cfg.progress)
		lib := b.c.rt.lib

		if f64, ok := any(buf).([]float64); ok {
			err := lib.RasterIO(b.h, flag, win, f64, cfg.layout, p.native())
			return struct{}{}, p.result(op, b.String(), err)
		}

		tmp := make([]float64, win.Len())
		if flag == native.Write {
			for y := range win.Height {
				for x := range win.Width {
					tmp[y*win.Width+x] = float64(buf[cfg.layout.Index(x, y)])
				}
			}
		}
		err := lib.RasterIO(b.h, flag, win, tmp, gdalasync.Packed(win.Width), p.native())
		if err = p.result(op, b.String(), err); err != nil {
			return struct{}{}, err
		}
		if flag == native.Read {
			for y := range win.Height {
				for x := range win.Width {
					buf[cfg.layout.Index(x, y)] = T(tmp[y*win.Width+x])
				}
			}
		}
		return struct{}{}, nil
	})
}

// checkIO rejects malformed requests before they are queued.
func checkIO(b *Band, win gdalasync.Window, n int, layout gdalasync.Layout) error {
	if win.Empty() {
		return errors.InvalidInput(errors.PhaseValidate, "rasterio", fmt.Sprintf("empty window %s", win))
	}
	if !win.Within(b.info.XSize, b.info.YSize) {
		return errors.New(errors.PhaseValidate, errors.KindOutOfBounds).
			Op("rasterio").
			Detail("window %s outside %dx%d raster", win, b.info.XSize, b.info.YSize).
			Build()
	}
	if layout.PixelSpace == 0 || layout.LineSpace == 0 {
		return errors.InvalidInput(errors.PhaseValidate, "rasterio", "pixel and line spacing must be non-zero")
	}
	if !layout.Fits(win.Width, win.Height, n) {
		return errors.InvalidInput(errors.PhaseValidate, "rasterio",
			fmt.Sprintf("buffer of %d elements too small for window %s", n, win))
	}
	return nil
}
