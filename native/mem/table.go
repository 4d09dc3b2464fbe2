package mem

import (
	"sync"

	"github.com/wippyai/gdal-async/native"
)

type kind uint8

const (
	kindDataset kind = iota + 1
	kindBand
	kindLayer
)

// handleTable hands out native handles. Freed handles are reused LIFO, the
// way the real library reuses freed addresses.
type handleTable struct {
	entries  []entry
	freeList []native.Handle
	mu       sync.RWMutex
}

type entry struct {
	value any
	kind  kind
	valid bool
}

func newHandleTable() *handleTable {
	return &handleTable{
		entries:  make([]entry, 0, 64),
		freeList: make([]native.Handle, 0, 16),
	}
}

func (t *handleTable) create(k kind, value any) native.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := entry{kind: k, value: value, valid: true}
	if len(t.freeList) > 0 {
		h := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[h-1] = e
		return h
	}
	t.entries = append(t.entries, e)
	return native.Handle(len(t.entries))
}

func (t *handleTable) get(h native.Handle, k kind) (any, bool) {
	if h == 0 {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := int(h) - 1
	if idx >= len(t.entries) {
		return nil, false
	}
	e := t.entries[idx]
	if !e.valid || e.kind != k {
		return nil, false
	}
	return e.value, true
}

func (t *handleTable) drop(h native.Handle) {
	if h == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := int(h) - 1
	if idx >= len(t.entries) || !t.entries[idx].valid {
		return
	}
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, h)
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}
