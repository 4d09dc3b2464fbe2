package mem

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const pageSize = 65536

// heap is the guest instance holding one open dataset's pixels as
// little-endian f64 values.
type heap struct {
	mod  api.Module
	mem  api.Memory
	fill api.Function
	size uint32 // bytes in use
}

func newHeap(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, name string, bytes uint64) (*heap, error) {
	if bytes > 1<<32-pageSize {
		return nil, fmt.Errorf("%d bytes exceed the 4GB heap limit", bytes)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("instantiate heap: %w", err)
	}
	h := &heap{
		mod:  mod,
		mem:  mod.ExportedMemory(memoryExport),
		fill: mod.ExportedFunction("fill"),
		size: uint32(bytes),
	}
	if need := pages(bytes); need > h.mem.Size()/pageSize {
		if _, ok := h.mem.Grow(need - h.mem.Size()/pageSize); !ok {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("cannot grow heap to %d pages", need)
		}
	}
	return h, nil
}

func pages(bytes uint64) uint32 {
	return uint32((bytes + pageSize - 1) / pageSize)
}

func (h *heap) load(off uint32) float64 {
	v, ok := h.mem.ReadFloat64Le(off)
	if !ok {
		panic(fmt.Sprintf("heap read at %d out of range", off))
	}
	return v
}

func (h *heap) store(off uint32, v float64) {
	if !h.mem.WriteFloat64Le(off, v) {
		panic(fmt.Sprintf("heap write at %d out of range", off))
	}
}

// fillRange runs the guest fill kernel over count slots starting at off.
func (h *heap) fillRange(ctx context.Context, off uint32, count int, v float64) error {
	_, err := h.fill.Call(ctx, api.EncodeU32(off), api.EncodeU32(uint32(count)), api.EncodeF64(v))
	return err
}

// snapshot copies count slots starting at off out of guest memory.
func (h *heap) snapshot(off uint32, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = h.load(off + uint32(i)*8)
	}
	return out
}

// restore copies vals into guest memory starting at off.
func (h *heap) restore(off uint32, vals []float64) {
	for i, v := range vals {
		h.store(off+uint32(i)*8, v)
	}
}

func (h *heap) close(ctx context.Context) error {
	return h.mod.Close(ctx)
}
