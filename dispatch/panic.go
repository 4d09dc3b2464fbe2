package dispatch

import (
	"fmt"

	goerrors "github.com/go-errors/errors"

	"github.com/wippyai/gdal-async/errors"
)

// PanicError wraps a value recovered from a panicking task together with the
// stack of the goroutine at the point of the panic.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	Task  string
	trace *goerrors.Error
}

func newPanicError(task string, v any) *PanicError {
	// Skip newPanicError and the deferred recover closure.
	return &PanicError{Value: v, Task: task, trace: goerrors.Wrap(v, 2)}
}

// Error returns the panic value without the stack.
func (e *PanicError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Stack returns the formatted goroutine stack captured at recovery.
func (e *PanicError) Stack() string {
	if e.trace == nil {
		return ""
	}
	return string(e.trace.Stack())
}

// Is makes errors.Is(err, errors.ErrPanic) hold.
func (e *PanicError) Is(target error) bool {
	t, ok := target.(*errors.Error)
	return ok && t.Kind == errors.KindPanic && (t.Phase == "" || t.Phase == errors.PhaseDispatch)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover converts a recovered panic value into an error. Intended for
// deferred use:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = dispatch.Recover(name, r)
//	    }
//	}()
//
// Errors that already describe a callback panic are passed through so that
// the original tag survives.
func Recover(task string, v any) error {
	if err, ok := v.(error); ok && errors.Is(err, errors.ErrCallbackPanic) {
		return err
	}
	return newPanicError(task, v)
}
