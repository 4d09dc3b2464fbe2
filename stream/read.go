package stream

import (
	"context"
	"io"

	"go.uber.org/zap"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/gdal"
)

// ReadStream reads a band window chunk by chunk.
type ReadStream[T gdalasync.Number] struct {
	band   *gdal.Band
	plan   plan
	hwm    int
	issued int // chunks handed to the band's queue
	queue  []pendingRead[T]
	err    error
	closed bool
}

type pendingRead[T gdalasync.Number] struct {
	win gdalasync.Window
	buf []T
	f   *dispatch.Future[struct{}]
}

// NewReadStream creates a stream over win. Nothing is read before the
// first call to Next.
func NewReadStream[T gdalasync.Number](b *gdal.Band, win gdalasync.Window, opts Options) (*ReadStream[T], error) {
	p, err := planFor(b, win, opts, "read_stream")
	if err != nil {
		return nil, err
	}
	return &ReadStream[T]{band: b, plan: p, hwm: opts.hwm(b)}, nil
}

// Next returns the next chunk, or io.EOF after the last one. It keeps up to
// HighWaterMark reads queued ahead of the consumer. A failed read fails the
// stream; a cancelled ctx only abandons the wait.
func (s *ReadStream[T]) Next(ctx context.Context) (Chunk[T], error) {
	if s.err != nil {
		return Chunk[T]{}, s.err
	}
	if s.closed {
		return Chunk[T]{}, errors.Closed(errors.PhaseStream, "read stream")
	}
	s.prefetch()
	if len(s.queue) == 0 {
		return Chunk[T]{}, io.EOF
	}

	head := s.queue[0]
	if _, err := head.f.Await(ctx); err != nil {
		if err == ctx.Err() {
			return Chunk[T]{}, err
		}
		s.fail(err)
		return Chunk[T]{}, err
	}
	s.queue[0] = pendingRead[T]{}
	s.queue = s.queue[1:]
	s.prefetch()

	return Chunk[T]{
		Y:     head.win.Y,
		Rows:  head.win.Height,
		Width: head.win.Width,
		Data:  head.buf,
	}, nil
}

// prefetch queues reads until HighWaterMark are in flight.
func (s *ReadStream[T]) prefetch() {
	for len(s.queue) < s.hwm && s.issued < s.plan.count() {
		win := s.plan.chunk(s.issued)
		buf := make([]T, win.Len())
		f := gdal.ReadAsync(s.band, win, buf, gdal.WithLayout(s.plan.layout(win.Height)))
		s.queue = append(s.queue, pendingRead[T]{win: win, buf: buf, f: f})
		s.issued++
	}
}

func (s *ReadStream[T]) fail(err error) {
	s.err = err
	s.queue = nil
	Logger().Debug("read stream failed", zap.Stringer("band", s.band), zap.Error(err))
}

// ForEach calls fn for every remaining chunk.
func (s *ReadStream[T]) ForEach(ctx context.Context, fn func(Chunk[T]) error) error {
	return ForEach[T](ctx, s, fn)
}

// ReadAll returns every remaining element.
func (s *ReadStream[T]) ReadAll(ctx context.Context) ([]T, error) {
	return ReadAll[T](ctx, s)
}

// InFlight returns the number of reads queued and not yet consumed.
func (s *ReadStream[T]) InFlight() int { return len(s.queue) }

// Window returns the streamed window.
func (s *ReadStream[T]) Window() gdalasync.Window { return s.plan.win }

// Chunks returns the number of chunks the stream yields in total.
func (s *ReadStream[T]) Chunks() int { return s.plan.count() }

// Close stops the stream. Reads already queued still run; their results
// are discarded.
func (s *ReadStream[T]) Close() {
	s.closed = true
	s.queue = nil
}
