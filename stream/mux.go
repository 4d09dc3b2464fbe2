package stream

import (
	"context"
	"fmt"
	"io"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/errors"
)

// Combiner merges aligned input chunks into out. in[i] holds the chunk of
// input i; every slice has len(out) elements.
type Combiner[T, R gdalasync.Number] func(in [][]T, out []R) error

// Mux pulls one chunk from every input and combines them. The inputs must
// cut identical windows at identical rows, so chunk i of every input covers
// the same pixels. Each input keeps its own reads in flight; Next waits for
// the slowest.
type Mux[T, R gdalasync.Number] struct {
	inputs  []*ReadStream[T]
	combine Combiner[T, R]
	in      [][]T
	pending []Chunk[T]
	have    []bool
	err     error
}

// NewMux creates a mux over inputs. Inputs with different window sizes or
// chunk plans fail with errors.KindInvalidInput.
func NewMux[T, R gdalasync.Number](inputs []*ReadStream[T], combine Combiner[T, R]) (*Mux[T, R], error) {
	if len(inputs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseValidate, "mux", "no inputs")
	}
	if combine == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "mux", "nil combiner")
	}
	ref := inputs[0].plan
	for i, s := range inputs[1:] {
		if !s.plan.compatible(ref) {
			return nil, errors.InvalidInput(errors.PhaseValidate, "mux",
				fmt.Sprintf("input %d plan %s does not match %s", i+1, s.plan, ref))
		}
	}
	return &Mux[T, R]{
		inputs:  inputs,
		combine: combine,
		in:      make([][]T, len(inputs)),
		pending: make([]Chunk[T], len(inputs)),
		have:    make([]bool, len(inputs)),
	}, nil
}

// Next returns the next combined chunk, or io.EOF after the last one.
// Chunks already pulled when ctx is cancelled are kept for the next call.
func (m *Mux[T, R]) Next(ctx context.Context) (Chunk[R], error) {
	if m.err != nil {
		return Chunk[R]{}, m.err
	}
	for i, s := range m.inputs {
		if m.have[i] {
			continue
		}
		c, err := s.Next(ctx)
		if err == io.EOF {
			return Chunk[R]{}, io.EOF
		}
		if err != nil {
			if err != ctx.Err() {
				m.fail(err)
			}
			return Chunk[R]{}, err
		}
		m.pending[i], m.have[i] = c, true
	}

	head := m.pending[0]
	for i := range m.inputs {
		m.in[i] = m.pending[i].Data
		m.pending[i], m.have[i] = Chunk[T]{}, false
	}

	out := make([]R, len(head.Data))
	if err := m.call(out); err != nil {
		m.fail(err)
		return Chunk[R]{}, err
	}
	return Chunk[R]{Y: head.Y, Rows: head.Rows, Width: head.Width, Data: out}, nil
}

func (m *Mux[T, R]) call(out []R) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseCallback, errors.KindCallbackPanic).
				Op("mux").
				Detail("combiner panicked").
				Value(r).
				Build()
		}
	}()
	return m.combine(m.in, out)
}

func (m *Mux[T, R]) fail(err error) {
	m.err = err
	for _, s := range m.inputs {
		s.Close()
	}
}

// ForEach calls fn for every remaining combined chunk.
func (m *Mux[T, R]) ForEach(ctx context.Context, fn func(Chunk[R]) error) error {
	return ForEach[R](ctx, m, fn)
}

// ReadAll returns every remaining combined element.
func (m *Mux[T, R]) ReadAll(ctx context.Context) ([]R, error) {
	return ReadAll[R](ctx, m)
}

// Close closes every input.
func (m *Mux[T, R]) Close() {
	for _, s := range m.inputs {
		s.Close()
	}
}
