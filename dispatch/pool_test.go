package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/gdal-async/errors"
)

func TestPoolBasic(t *testing.T) {
	p := NewPool(4)

	var count atomic.Int32
	for range 10 {
		require.NoError(t, p.Submit(func() { count.Add(1) }))
	}

	p.Close()
	assert.Equal(t, int32(10), count.Load(), "all 10 tasks should have executed")
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 4, stats.Workers)
}

func TestPoolConcurrencyLimit(t *testing.T) {
	const workers = 3
	p := NewPool(workers)
	defer p.Close()

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		wg        sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			cur := active.Add(1)
			for {
				old := maxActive.Load()
				if cur <= old || maxActive.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.LessOrEqual(t, maxActive.Load(), int32(workers))
}

func TestPoolSubmitNeverBlocks(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release }))

	done := make(chan struct{})
	go func() {
		for range 1000 {
			_ = p.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked behind a busy worker")
	}
	close(release)
	p.Close()
	assert.Equal(t, int64(1001), p.Stats().Completed)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()

	err := p.Submit(func() {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrClosed))
}

func TestPoolPanicDoesNotKillWorker(t *testing.T) {
	p := NewPool(1)
	require.NoError(t, p.Submit(func() { panic("boom") }))

	var ran atomic.Bool
	require.NoError(t, p.Submit(func() { ran.Store(true) }))
	p.Close()

	assert.True(t, ran.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestPoolMetrics(t *testing.T) {
	var calls atomic.Int32
	p := NewPool(1, WithPoolMetrics(5*time.Millisecond, func(PoolStats) { calls.Add(1) }))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	p.Close()
}

func TestWithPoolMetricsValidation(t *testing.T) {
	assert.Panics(t, func() { WithPoolMetrics(0, func(PoolStats) {}) })
	assert.Panics(t, func() { WithPoolMetrics(time.Second, nil) })
	assert.Panics(t, func() { NewPool(0) })
}

func TestGoAwait(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	f := Go(p, nil, "answer", func() (int, error) { return 42, nil })
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, f.Settled())
}

func TestGoPanicRejects(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	f := Go(p, nil, "explode", func() (int, error) { panic("kaboom") })
	_, err := f.Await(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPanic))

	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, "explode", pe.Task)
	assert.NotEmpty(t, pe.Stack())
}

func TestGoPreservesCallbackPanic(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	tagged := errors.CallbackPanic("progress", "bad callback")
	f := Go(p, nil, "stats", func() (int, error) { panic(tagged) })
	err := f.Err()
	assert.True(t, errors.Is(err, errors.ErrCallbackPanic))
	assert.False(t, errors.Is(err, errors.ErrPanic))
}

func TestGoClosedPool(t *testing.T) {
	p := NewPool(1)
	p.Close()

	f := Go(p, nil, "late", func() (int, error) { return 1, nil })
	select {
	case <-f.Done():
	default:
		t.Fatal("future must settle synchronously when the pool refuses")
	}
	assert.True(t, errors.Is(f.Err(), errors.ErrClosed))
}

func TestAwaitContextCancelled(t *testing.T) {
	f, _ := NewFuture[int](nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFutureSettlesOnce(t *testing.T) {
	f, settle := NewFuture[string](nil)
	settle("first", nil)
	settle("second", errors.ErrClosed)

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestThenRunsOnLoopInOrder(t *testing.T) {
	loop := NewLoop()
	defer loop.Close()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	f, settle := NewFuture[int](loop)
	for i := range 5 {
		wg.Add(1)
		f.Then(func(v int, err error) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i*v)
			mu.Unlock()
		})
	}
	settle(1, nil)

	// Registered after settling: delivered after the others.
	wg.Add(1)
	f.Then(func(v int, err error) {
		defer wg.Done()
		mu.Lock()
		order = append(order, 100)
		mu.Unlock()
	})
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 100}, order)
}

func TestResolvedRejected(t *testing.T) {
	v, err := Resolved[int](nil, 7).Result()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = Rejected[int](nil, errors.ErrDestroyed).Result()
	assert.True(t, errors.Is(err, errors.ErrDestroyed))
}

func TestAwaitAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var fs []*Future[int]
	for i := range 8 {
		fs = append(fs, Go(p, nil, "sq", func() (int, error) { return i * i, nil }))
	}
	vs, err := AwaitAll(context.Background(), fs...)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49}, vs)

	fs = append(fs, Rejected[int](nil, errors.ErrTornDown))
	_, err = AwaitAll(context.Background(), fs...)
	assert.True(t, errors.Is(err, errors.ErrTornDown))
}

func TestLoopContinuesAfterCallbackPanic(t *testing.T) {
	var panics atomic.Int32
	loop := NewLoop(WithPanicHandler(func(any) { panics.Add(1) }))

	ran := make(chan struct{})
	require.NoError(t, loop.Post(func() { panic("cb") }))
	require.NoError(t, loop.Post(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a panicking callback")
	}
	loop.Close()
	<-loop.Done()
	assert.Equal(t, int32(1), panics.Load())
	assert.True(t, errors.Is(loop.Post(func() {}), errors.ErrClosed))
}
