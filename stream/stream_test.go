package stream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/gdal"
	"github.com/wippyai/gdal-async/native"
)

const (
	testX = 7
	testY = 9
)

type fixture struct {
	rt *gdal.Runtime
	ds *gdal.Dataset
	a  *gdal.Band
	b  *gdal.Band
}

// setup creates a 7x9 two-band dataset with 4-row blocks. Band a holds its
// pixel index, band b holds 100 everywhere.
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	rt, err := gdal.New(ctx, gdal.WithWorkers(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ds, err := rt.Create(ctx, gdal.CreateSpec{XSize: testX, YSize: testY, Bands: 3, BlockY: 4})
	require.NoError(t, err)
	a, err := ds.Band(ctx, 1)
	require.NoError(t, err)
	b, err := ds.Band(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, gdal.Write(ctx, a, gdalasync.Full(testX, testY), index(testX*testY)))
	require.NoError(t, b.Fill(ctx, 100))
	return &fixture{rt: rt, ds: ds, a: a, b: b}
}

func index(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// expected returns the pixel indexes of win in a testX-wide raster.
func expected(win gdalasync.Window, flip bool) []float64 {
	var out []float64
	for r := range win.Height {
		y := win.Y + r
		if flip {
			y = win.Y + win.Height - 1 - r
		}
		for x := range win.Width {
			out = append(out, float64(y*testX+win.X+x))
		}
	}
	return out
}

// block occupies the dataset's queue until the returned func is called.
func block(t *testing.T, ds *gdal.Dataset) func() {
	started := make(chan struct{})
	release := make(chan struct{})
	gdal.Exec(ds, "block", func(native.Library, native.Handle) (struct{}, error) {
		close(started)
		<-release
		return struct{}{}, nil
	})
	<-started
	return func() { close(release) }
}

func TestPlan(t *testing.T) {
	rows := func(p plan) []int {
		var out []int
		for i := range p.count() {
			out = append(out, p.chunk(i).Y)
		}
		return out
	}

	win := gdalasync.Window{X: 1, Y: 3, Width: 4, Height: 10}

	p := newPlan(win, 4, true, false)
	assert.Equal(t, 4, p.count())
	assert.Equal(t, []int{3, 4, 8, 12}, rows(p))
	assert.Equal(t, 1, p.chunk(0).Height)
	assert.Equal(t, 4, p.chunk(1).Height)
	assert.Equal(t, 1, p.chunk(3).Height)

	flipped := newPlan(win, 4, true, true)
	assert.Equal(t, []int{12, 8, 4, 3}, rows(flipped))

	perRow := newPlan(win, 4, false, false)
	assert.Equal(t, 10, perRow.count())

	aligned := newPlan(gdalasync.Window{Width: 4, Height: 8}, 4, true, false)
	assert.Equal(t, 2, aligned.count())
	assert.True(t, p.compatible(newPlan(gdalasync.Window{Y: 7, Width: 4, Height: 10}, 4, true, false)))
	assert.False(t, p.compatible(perRow))
	assert.False(t, p.compatible(flipped))
}

func TestReadStreamAccounting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	windows := []gdalasync.Window{
		gdalasync.Full(testX, testY),
		{X: 2, Y: 1, Width: 3, Height: 6},
		{X: 0, Y: 5, Width: 7, Height: 1},
		{X: 6, Y: 0, Width: 1, Height: 9},
	}
	for _, win := range windows {
		for _, opts := range []Options{
			{BlockOptimize: true},
			{BlockOptimize: false},
			{BlockOptimize: true, Flip: true},
			{BlockOptimize: false, Flip: true, HighWaterMark: 1},
		} {
			rs, err := NewReadStream[float64](f.a, win, opts)
			require.NoError(t, err)

			var total, chunks int
			var data []float64
			err = rs.ForEach(ctx, func(c Chunk[float64]) error {
				assert.Equal(t, win.Width, c.Width)
				assert.Len(t, c.Data, c.Rows*c.Width)
				total += len(c.Data)
				chunks++
				data = append(data, c.Data...)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, win.Len(), total, "window %s opts %+v", win, opts)
			assert.Equal(t, rs.Chunks(), chunks)
			assert.Equal(t, expected(win, opts.Flip), data, "window %s opts %+v", win, opts)
		}
	}
}

func TestReadStreamBlockAligned(t *testing.T) {
	f := setup(t)
	rs, err := NewReadStream[int32](f.a, gdalasync.Window{Y: 2, Width: testX, Height: 7}, Options{BlockOptimize: true})
	require.NoError(t, err)

	var heights []int
	require.NoError(t, rs.ForEach(context.Background(), func(c Chunk[int32]) error {
		heights = append(heights, c.Rows)
		return nil
	}))
	assert.Equal(t, []int{2, 4, 1}, heights)

	_, err = rs.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestReadStreamPrefetchBounded(t *testing.T) {
	f := setup(t)
	rs, err := NewReadStream[float64](f.a, gdalasync.Full(testX, testY), Options{HighWaterMark: 2})
	require.NoError(t, err)

	release := block(t, f.ds)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = rs.Next(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, rs.InFlight())

	release()
	all, err := rs.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, index(testX*testY), all)
}

func TestReadStreamValidation(t *testing.T) {
	f := setup(t)
	_, err := NewReadStream[float64](f.a, gdalasync.Window{X: 5, Width: 3, Height: 1}, Options{})
	assert.True(t, errors.Is(err, errors.ErrOutOfBounds))
	_, err = NewReadStream[float64](f.a, gdalasync.Window{Width: 3}, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	require.NoError(t, f.ds.Close(context.Background()))
	_, err = NewReadStream[float64](f.a, gdalasync.Full(testX, testY), Options{})
	assert.True(t, errors.Is(err, errors.ErrDestroyed))
}

func TestReadStreamFailsWithDataset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rs, err := NewReadStream[float64](f.a, gdalasync.Full(testX, testY), Options{HighWaterMark: 2})
	require.NoError(t, err)
	_, err = rs.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, f.ds.Close(ctx))
	_, err = rs.ReadAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDestroyed) || errors.Is(err, errors.ErrTornDown), "got %v", err)

	// The failure is sticky.
	_, again := rs.Next(ctx)
	assert.Equal(t, err, again)
}

func TestWriteStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, opts := range []Options{
		{BlockOptimize: true},
		{BlockOptimize: false},
		{BlockOptimize: true, Flip: true},
		{BlockOptimize: false, Flip: true},
		{BlockOptimize: true, HighWaterMark: 1},
	} {
		f := setup(t)
		out, err := f.ds.Band(ctx, 3)
		require.NoError(t, err)

		win := gdalasync.Window{X: 1, Y: 1, Width: 5, Height: 7}
		src := expected(win, opts.Flip)
		ws, err := NewWriteStream[float64](out, win, opts)
		require.NoError(t, err)
		for i := 0; i < len(src); i += 3 {
			require.NoError(t, ws.Write(ctx, src[i:min(i+3, len(src))]))
			assert.LessOrEqual(t, ws.InFlight(), ws.hwm)
		}
		require.NoError(t, ws.Close(ctx))
		assert.Equal(t, win.Len(), ws.Accepted())

		got := make([]float64, win.Len())
		require.NoError(t, gdal.Read(ctx, out, win, got))
		assert.Equal(t, expected(win, false), got, "opts %+v", opts)
	}
}

func TestWriteStreamOverflow(t *testing.T) {
	ctx := context.Background()
	for name, opts := range map[string]Options{
		"block aligned": {BlockOptimize: true},
		"row aligned":   {BlockOptimize: false},
		"flipped":       {BlockOptimize: true, Flip: true},
		"flipped rows":  {Flip: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			win := gdalasync.Window{Y: 1, Width: testX, Height: 6}
			ws, err := NewWriteStream[uint8](f.a, win, opts)
			require.NoError(t, err)

			chunk := make([]uint8, 10)
			for range 4 {
				require.NoError(t, ws.Write(ctx, chunk))
			}
			err = ws.Write(ctx, chunk)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrOverflow))
			assert.Equal(t, 40, ws.Accepted(), "overflowing data must not be accepted")

			// The stream stays failed.
			assert.Equal(t, err, ws.Write(ctx, chunk[:1]))
			assert.True(t, errors.Is(ws.Close(ctx), errors.ErrOverflow))
		})
	}
}

func TestWriteStreamOverflowSingleWrite(t *testing.T) {
	f := setup(t)
	ws, err := NewWriteStream[float64](f.a, gdalasync.Window{Width: 2, Height: 2}, Options{})
	require.NoError(t, err)
	err = ws.Write(context.Background(), make([]float64, 5))
	assert.True(t, errors.Is(err, errors.ErrOverflow))
	assert.Zero(t, ws.Accepted())
}

func TestWriteStreamBackpressure(t *testing.T) {
	f := setup(t)
	ws, err := NewWriteStream[float64](f.a, gdalasync.Full(testX, testY), Options{HighWaterMark: 2})
	require.NoError(t, err)
	row := make([]float64, testX)

	release := block(t, f.ds)
	require.NoError(t, ws.Write(context.Background(), row))
	require.NoError(t, ws.Write(context.Background(), row))
	assert.Equal(t, 2, ws.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	err = ws.Write(ctx, row)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, ws.InFlight())

	release()
	assert.ErrorIs(t, ws.Close(context.Background()), context.DeadlineExceeded)
	assert.Zero(t, ws.InFlight())
}

func TestWriteStreamPartialClose(t *testing.T) {
	ctx := context.Background()
	for _, flip := range []bool{false, true} {
		f := setup(t)
		win := gdalasync.Full(testX, testY)
		ws, err := NewWriteStream[float64](f.b, win, Options{BlockOptimize: true, Flip: flip})
		require.NoError(t, err)

		// Six rows: one full block and half of the next.
		src := expected(win, flip)[:6*testX]
		require.NoError(t, ws.Write(ctx, src))
		require.NoError(t, ws.Close(ctx))

		got := make([]float64, win.Len())
		require.NoError(t, gdal.Read(ctx, f.b, win, got))
		want := expected(win, false)
		for y := range testY {
			written := y < 6
			if flip {
				written = y >= testY-6
			}
			for x := range testX {
				i := y*testX + x
				if written {
					assert.Equal(t, want[i], got[i], "flip=%t pixel %d,%d", flip, x, y)
				} else {
					assert.Equal(t, 100.0, got[i], "flip=%t pixel %d,%d", flip, x, y)
				}
			}
		}
	}
}

func TestWriteStreamCloseInsideRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ws, err := NewWriteStream[float64](f.a, gdalasync.Full(testX, testY), Options{})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, make([]float64, testX+3)))

	err = ws.Close(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.True(t, errors.Is(ws.Write(ctx, []float64{1}), errors.ErrInvalidInput))
}

func TestMuxCombines(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	win := gdalasync.Window{X: 1, Y: 2, Width: 4, Height: 5}
	opts := Options{BlockOptimize: true, HighWaterMark: 1}

	ra, err := NewReadStream[float64](f.a, win, opts)
	require.NoError(t, err)
	rb, err := NewReadStream[float64](f.b, win, opts)
	require.NoError(t, err)

	mux, err := NewMux[float64, int32]([]*ReadStream[float64]{ra, rb}, func(in [][]float64, out []int32) error {
		for i := range out {
			out[i] = int32(in[0][i] + in[1][i])
		}
		return nil
	})
	require.NoError(t, err)

	got, err := mux.ReadAll(ctx)
	require.NoError(t, err)
	var want []int32
	for _, v := range expected(win, false) {
		want = append(want, int32(v+100))
	}
	assert.Equal(t, want, got)

	_, err = mux.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestMuxKeepsAlignmentAfterCancelledWait(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	create := func(offset float64) *gdal.Band {
		ds, err := f.rt.Create(ctx, gdal.CreateSpec{XSize: 2, YSize: 4, Bands: 1})
		require.NoError(t, err)
		band, err := ds.Band(ctx, 1)
		require.NoError(t, err)
		rows := make([]float64, 8)
		for i := range rows {
			rows[i] = offset + float64(i/2)
		}
		require.NoError(t, gdal.Write(ctx, band, gdalasync.Full(2, 4), rows))
		return band
	}
	low, high := create(0), create(100)
	highDS, err := high.Dataset()
	require.NoError(t, err)

	win := gdalasync.Full(2, 4)
	rl, err := NewReadStream[float64](low, win, Options{})
	require.NoError(t, err)
	rh, err := NewReadStream[float64](high, win, Options{})
	require.NoError(t, err)
	mux, err := NewMux[float64, float64]([]*ReadStream[float64]{rl, rh}, func(in [][]float64, out []float64) error {
		for i := range out {
			out[i] = in[1][i] - in[0][i]
		}
		return nil
	})
	require.NoError(t, err)

	release := block(t, highDS)
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err = mux.Next(short)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
	release()

	var total, rows int
	err = mux.ForEach(ctx, func(c Chunk[float64]) error {
		assert.Equal(t, rows, c.Y)
		for _, v := range c.Data {
			assert.Equal(t, 100.0, v)
		}
		rows += c.Rows
		total += len(c.Data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	assert.Equal(t, 4, rows)
}

func TestMuxIncompatible(t *testing.T) {
	f := setup(t)
	sum := func(in [][]float64, out []float64) error { return nil }
	open := func(win gdalasync.Window, opts Options) *ReadStream[float64] {
		rs, err := NewReadStream[float64](f.a, win, opts)
		require.NoError(t, err)
		return rs
	}
	win := gdalasync.Window{Width: 4, Height: 4}

	cases := map[string][]*ReadStream[float64]{
		"size":   {open(win, Options{}), open(gdalasync.Window{Width: 4, Height: 3}, Options{})},
		"blocks": {open(win, Options{BlockOptimize: true}), open(win, Options{})},
		"offset": {open(win, Options{BlockOptimize: true}), open(gdalasync.Window{Y: 1, Width: 4, Height: 4}, Options{BlockOptimize: true})},
		"flip":   {open(win, Options{}), open(win, Options{Flip: true})},
		"empty":  nil,
	}
	for name, inputs := range cases {
		t.Run(name, func(t *testing.T) {
			before := f.rt.Pool().Stats().Submitted
			_, err := NewMux[float64, float64](inputs, sum)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput), "got %v", err)
			assert.Equal(t, before, f.rt.Pool().Stats().Submitted)
		})
	}

	// Different bands with the same plan are fine.
	_, err := NewMux[float64, float64]([]*ReadStream[float64]{open(win, Options{}), open(gdalasync.Window{X: 3, Y: 5, Width: 4, Height: 4}, Options{})}, sum)
	assert.NoError(t, err)
}

func TestMuxCombinerPanic(t *testing.T) {
	f := setup(t)
	win := gdalasync.Full(testX, testY)
	ra, err := NewReadStream[float64](f.a, win, Options{})
	require.NoError(t, err)

	mux, err := NewMux[float64, float64]([]*ReadStream[float64]{ra}, func([][]float64, []float64) error {
		panic("combine")
	})
	require.NoError(t, err)
	_, err = mux.Next(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCallbackPanic))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "combine", e.Value)
}

func TestCalc(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	out, err := f.ds.Band(ctx, 3)
	require.NoError(t, err)

	err = Calc[float64](ctx, map[string]*gdal.Band{"a": f.a, "b": f.b}, out, func(px map[string]float64) float64 {
		return px["a"]*2 + px["b"]
	}, Options{BlockOptimize: true})
	require.NoError(t, err)

	got := make([]float64, testX*testY)
	require.NoError(t, gdal.Read(ctx, out, gdalasync.Full(testX, testY), got))
	for i, v := range got {
		assert.Equal(t, float64(i)*2+100, v)
	}

	err = Calc[float64](ctx, nil, out, nil, Options{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
