package gdal

import (
	"github.com/wippyai/gdal-async/errors"
	"github.com/wippyai/gdal-async/native"
)

// ProgressFunc reports the progress of a long native call. It runs
// synchronously on the worker executing the call, between native steps.
// Returning false aborts the call, which then fails with the library's
// "User terminated" error. A panic also aborts the call; the operation then
// fails with errors.KindCallbackPanic.
type ProgressFunc func(complete float64, message string) bool

// progressAdapter shields the native call from caller code.
type progressAdapter struct {
	fn    ProgressFunc
	err   *errors.Error
	op    string
	calls int
}

func newProgress(op string, fn ProgressFunc) *progressAdapter {
	if fn == nil {
		return nil
	}
	return &progressAdapter{fn: fn, op: op}
}

// native returns the callback to hand to the library, or nil.
func (p *progressAdapter) native() native.ProgressFunc {
	if p == nil {
		return nil
	}
	return p.call
}

func (p *progressAdapter) call(complete float64, message string) (cont bool) {
	if p.err != nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			p.err = errors.CallbackPanic(p.op, r)
			cont = false
		}
	}()
	p.calls++
	return p.fn(complete, message)
}

// result turns the native call's error into the operation's error. A
// callback panic takes precedence over the abort it caused.
func (p *progressAdapter) result(op, res string, err error) error {
	if p != nil && p.err != nil {
		e := *p.err
		e.Resource = res
		if err != nil {
			e.Cause = err
		}
		return &e
	}
	return nativeErr(op, res, err)
}
