package main

import (
	"context"
	"fmt"
	"time"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/gdal"
	"github.com/wippyai/gdal-async/native"
	"github.com/wippyai/gdal-async/stream"
)

const (
	scenarioTwoGroup = "two-group"
	scenarioCopy     = "copy"
	scenarioCalc     = "calc"
)

// progressFunc reports done out of total steps of the running scenario.
type progressFunc func(done, total int)

// result is the outcome of one scenario.
type result struct {
	name    string
	elapsed time.Duration
	bytes   int64 // pixel bytes moved, 0 if not applicable
	detail  string
}

type scenarioFunc func(ctx context.Context, rt *gdal.Runtime, cfg *benchConfig, progress progressFunc) (result, error)

var scenarios = map[string]scenarioFunc{
	scenarioTwoGroup: runTwoGroup,
	scenarioCopy:     runCopy,
	scenarioCalc:     runCalc,
}

// runTwoGroup holds dataset A with one long task and checks that short
// tasks on dataset B finish while it runs.
func runTwoGroup(ctx context.Context, rt *gdal.Runtime, cfg *benchConfig, progress progressFunc) (result, error) {
	start := time.Now()
	a, err := rt.Create(ctx, gdal.CreateSpec{XSize: 64, YSize: 64, Bands: 1})
	if err != nil {
		return result{}, err
	}
	defer a.Close(ctx)
	b, err := rt.Create(ctx, gdal.CreateSpec{XSize: 64, YSize: 64, Bands: 1})
	if err != nil {
		return result{}, err
	}
	defer b.Close(ctx)
	band, err := b.Band(ctx, 1)
	if err != nil {
		return result{}, err
	}

	long := gdal.Exec(a, "long", func(lib native.Library, h native.Handle) (int, error) {
		time.Sleep(cfg.LongTask)
		return lib.BandCount(h)
	})

	short := make([]*dispatch.Future[native.Statistics], cfg.ShortTasks)
	for i := range short {
		short[i] = band.ComputeStatisticsAsync(nil)
	}
	for i, f := range short {
		if _, err := f.Await(ctx); err != nil {
			return result{}, err
		}
		progress(i+1, cfg.ShortTasks+1)
	}
	shortDone := time.Since(start)
	longPending := !long.Settled()

	if _, err := long.Await(ctx); err != nil {
		return result{}, err
	}
	progress(cfg.ShortTasks+1, cfg.ShortTasks+1)

	verdict := "B ran alongside A"
	if !longPending {
		verdict = "B finished after A; too few workers?"
	}
	return result{
		name:    scenarioTwoGroup,
		elapsed: time.Since(start),
		detail:  fmt.Sprintf("%d short tasks in %s, %s", cfg.ShortTasks, shortDone.Round(time.Millisecond), verdict),
	}, nil
}

// runCopy streams a filled band into a second dataset block by block.
func runCopy(ctx context.Context, rt *gdal.Runtime, cfg *benchConfig, progress progressFunc) (result, error) {
	src, err := newFilled(ctx, rt, cfg, 1)
	if err != nil {
		return result{}, err
	}
	defer src.ds.Close(ctx)
	dst, err := rt.Create(ctx, gdal.CreateSpec{XSize: cfg.Width, YSize: cfg.Height, Bands: 1, BlockY: cfg.BlockY})
	if err != nil {
		return result{}, err
	}
	defer dst.Close(ctx)
	out, err := dst.Band(ctx, 1)
	if err != nil {
		return result{}, err
	}

	start := time.Now()
	win := gdalasync.Full(cfg.Width, cfg.Height)
	opts := stream.Options{BlockOptimize: true}
	rs, err := stream.NewReadStream[float64](src.band, win, opts)
	if err != nil {
		return result{}, err
	}
	ws, err := stream.NewWriteStream[float64](out, win, opts)
	if err != nil {
		return result{}, err
	}
	done := 0
	err = rs.ForEach(ctx, func(c stream.Chunk[float64]) error {
		done++
		progress(done, rs.Chunks())
		return ws.Write(ctx, c.Data)
	})
	if cerr := ws.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return result{}, err
	}
	return result{
		name:    scenarioCopy,
		elapsed: time.Since(start),
		bytes:   2 * cfg.rasterBytes(),
		detail:  fmt.Sprintf("%d chunks", rs.Chunks()),
	}, nil
}

// runCalc evaluates a two-input pixel function into a third band.
func runCalc(ctx context.Context, rt *gdal.Runtime, cfg *benchConfig, progress progressFunc) (result, error) {
	in, err := newFilled(ctx, rt, cfg, 3)
	if err != nil {
		return result{}, err
	}
	defer in.ds.Close(ctx)
	b2, err := in.ds.Band(ctx, 2)
	if err != nil {
		return result{}, err
	}
	out, err := in.ds.Band(ctx, 3)
	if err != nil {
		return result{}, err
	}
	if err := b2.Fill(ctx, 10); err != nil {
		return result{}, err
	}

	start := time.Now()
	total := cfg.Width * cfg.Height
	pixels := 0
	err = stream.Calc[float64](ctx, map[string]*gdal.Band{"a": in.band, "b": b2}, out, func(px map[string]float64) float64 {
		pixels++
		if pixels%cfg.Width == 0 {
			progress(pixels, total)
		}
		return px["a"]*px["b"] + 1
	}, stream.Options{BlockOptimize: true})
	if err != nil {
		return result{}, err
	}
	st, err := out.ComputeStatistics(ctx, nil)
	if err != nil {
		return result{}, err
	}
	return result{
		name:    scenarioCalc,
		elapsed: time.Since(start),
		bytes:   3 * cfg.rasterBytes(),
		detail:  fmt.Sprintf("mean %.1f", st.Mean),
	}, nil
}

type filled struct {
	ds   *gdal.Dataset
	band *gdal.Band
}

// newFilled creates a dataset whose first band holds a gradient.
func newFilled(ctx context.Context, rt *gdal.Runtime, cfg *benchConfig, bands int) (filled, error) {
	ds, err := rt.Create(ctx, gdal.CreateSpec{XSize: cfg.Width, YSize: cfg.Height, Bands: bands, BlockY: cfg.BlockY})
	if err != nil {
		return filled{}, err
	}
	band, err := ds.Band(ctx, 1)
	if err != nil {
		ds.Close(ctx)
		return filled{}, err
	}
	ws, err := stream.NewWriteStream[float64](band, gdalasync.Full(cfg.Width, cfg.Height), stream.Options{BlockOptimize: true})
	if err != nil {
		ds.Close(ctx)
		return filled{}, err
	}
	row := make([]float64, cfg.Width)
	for y := range cfg.Height {
		for x := range row {
			row[x] = float64(x + y)
		}
		if err := ws.Write(ctx, row); err != nil {
			break
		}
	}
	if err := ws.Close(ctx); err != nil {
		ds.Close(ctx)
		return filled{}, err
	}
	return filled{ds: ds, band: band}, nil
}
