package mem

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// guard detects overlapping calls on one dataset. The real library would
// corrupt its state instead.
type guard struct {
	busy  atomic.Bool
	owner atomic.Value // name of the call holding the guard
}

func (d *Driver) enter(ds *dataset, op string) error {
	if !ds.guard.busy.CompareAndSwap(false, true) {
		d.violations.Add(1)
		holder, _ := ds.guard.owner.Load().(string)
		Logger().Warn("concurrent entry into dataset",
			zap.String("dataset", ds.path),
			zap.String("op", op),
			zap.String("holder", holder))
		return failf(ErrAssertion, "%s: concurrent access to dataset %s during %s", op, ds.path, holder)
	}
	ds.guard.owner.Store(op)
	return nil
}

func (d *Driver) leave(ds *dataset) {
	ds.guard.owner.Store("")
	ds.guard.busy.Store(false)
}

// Violations returns the number of overlapping calls detected so far.
func (d *Driver) Violations() int64 {
	return d.violations.Load()
}
