package stream

import (
	"context"

	"go.uber.org/zap"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/gdal"
)

// WriteStream writes a band window chunk by chunk.
type WriteStream[T gdalasync.Number] struct {
	band     *gdal.Band
	plan     plan
	hwm      int
	chunk    int // index of the chunk being assembled
	buf      []T
	accepted int
	inflight []*dispatch.Future[struct{}]
	err      error
	closed   bool
}

// NewWriteStream creates a stream over win. Elements are accepted in window
// order: rows left to right, top to bottom, or bottom to top when flipped.
func NewWriteStream[T gdalasync.Number](b *gdal.Band, win gdalasync.Window, opts Options) (*WriteStream[T], error) {
	p, err := planFor(b, win, opts, "write_stream")
	if err != nil {
		return nil, err
	}
	s := &WriteStream[T]{band: b, plan: p, hwm: opts.hwm(b)}
	s.buf = make([]T, 0, p.chunk(0).Len())
	return s, nil
}

// Write appends data to the stream. Every completed chunk is queued as one
// write; Write waits while HighWaterMark writes are in flight.
//
// Data beyond the window fails with errors.KindOverflow and nothing of it
// is accepted. Any failure, including a cancelled wait, fails the stream.
func (s *WriteStream[T]) Write(ctx context.Context, data []T) error {
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return errors.Closed(errors.PhaseStream, "write stream")
	}
	if s.accepted+len(data) > s.plan.total() {
		return s.fail(errors.Overflow(errors.PhaseStream, s.band.String(), s.accepted+len(data), s.plan.total()))
	}

	for len(data) > 0 {
		want := s.plan.chunk(s.chunk).Len()
		n := min(want-len(s.buf), len(data))
		s.buf = append(s.buf, data[:n]...)
		s.accepted += n
		data = data[n:]
		if len(s.buf) < want {
			break
		}
		if err := s.issue(ctx, s.plan.chunk(s.chunk), s.buf); err != nil {
			return err
		}
		s.chunk++
		if s.chunk < s.plan.count() {
			s.buf = make([]T, 0, s.plan.chunk(s.chunk).Len())
		} else {
			s.buf = nil
		}
	}
	return nil
}

// issue queues one write once fewer than HighWaterMark are in flight.
func (s *WriteStream[T]) issue(ctx context.Context, win gdalasync.Window, buf []T) error {
	if err := s.reap(); err != nil {
		return err
	}
	for len(s.inflight) >= s.hwm {
		if _, err := s.inflight[0].Await(ctx); err != nil {
			return s.fail(err)
		}
		s.pop()
	}
	s.inflight = append(s.inflight, gdal.WriteAsync(s.band, win, buf, gdal.WithLayout(s.plan.layout(win.Height))))
	return nil
}

// reap drops settled writes from the head of the queue.
func (s *WriteStream[T]) reap() error {
	for len(s.inflight) > 0 && s.inflight[0].Settled() {
		if err := s.inflight[0].Err(); err != nil {
			return s.fail(err)
		}
		s.pop()
	}
	return nil
}

func (s *WriteStream[T]) pop() {
	s.inflight[0] = nil
	s.inflight = s.inflight[1:]
}

func (s *WriteStream[T]) fail(err error) error {
	if s.err == nil {
		s.err = err
		Logger().Debug("write stream failed", zap.Stringer("band", s.band), zap.Error(err))
	}
	return s.err
}

// Close writes the rows of a partially assembled chunk and waits for every
// queued write. Elements of an incomplete trailing row fail the stream with
// errors.KindInvalidInput. Close returns the stream's first error.
func (s *WriteStream[T]) Close(ctx context.Context) error {
	if s.closed {
		return s.err
	}
	s.closed = true

	if s.err == nil && len(s.buf) > 0 {
		width := s.plan.win.Width
		if len(s.buf)%width != 0 {
			s.fail(errors.InvalidInput(errors.PhaseStream, "write",
				"stream closed inside a row"))
		} else {
			win := s.plan.chunk(s.chunk)
			rows := len(s.buf) / width
			if s.plan.flip {
				// Flipped data fills a chunk from its bottom row up.
				win = win.Rows(win.Height-rows, rows)
			} else {
				win = win.Rows(0, rows)
			}
			_ = s.issue(ctx, win, s.buf)
		}
		s.buf = nil
	}

	for len(s.inflight) > 0 {
		if _, err := s.inflight[0].Await(ctx); err != nil {
			return s.fail(err)
		}
		s.pop()
	}
	return s.err
}

// Accepted returns the number of elements accepted so far.
func (s *WriteStream[T]) Accepted() int { return s.accepted }

// InFlight returns the number of queued writes not known to be finished.
func (s *WriteStream[T]) InFlight() int { return len(s.inflight) }

// Window returns the streamed window.
func (s *WriteStream[T]) Window() gdalasync.Window { return s.plan.win }
