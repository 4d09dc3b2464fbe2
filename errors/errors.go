package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which layer detected the error
type Phase string

const (
	PhaseRegistry Phase = "registry" // handle registry lookups
	PhaseGraph    Phase = "graph"    // ownership edges
	PhaseQueue    Phase = "queue"    // resource group queue
	PhaseDispatch Phase = "dispatch" // worker pool and futures
	PhaseStream   Phase = "stream"   // block streaming
	PhaseNative   Phase = "native"   // inside a native call
	PhaseCallback Phase = "callback" // caller code invoked from a native call
	PhaseValidate Phase = "validate" // argument checks before enqueue
	PhaseLoad     Phase = "load"     // driver and kernel loading
)

// Kind categorizes the error
type Kind string

const (
	KindDestroyed     Kind = "destroyed"
	KindTornDown      Kind = "torn_down"
	KindNativeFailure Kind = "native_failure"
	KindInvalidInput  Kind = "invalid_input"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindOverflow      Kind = "overflow"
	KindClosed        Kind = "closed"
	KindCallbackPanic Kind = "callback_panic"
	KindPanic         Kind = "panic"
	KindTypeMismatch  Kind = "type_mismatch"
	KindNotFound      Kind = "not_found"
	KindUnsupported   Kind = "unsupported"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrDestroyed     = &Error{Kind: KindDestroyed}
	ErrTornDown      = &Error{Kind: KindTornDown}
	ErrNativeFailure = &Error{Kind: KindNativeFailure}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrOutOfBounds   = &Error{Kind: KindOutOfBounds}
	ErrOverflow      = &Error{Kind: KindOverflow}
	ErrClosed        = &Error{Kind: KindClosed}
	ErrCallbackPanic = &Error{Kind: KindCallbackPanic}
	ErrPanic         = &Error{Kind: KindPanic}
	ErrTypeMismatch  = &Error{Kind: KindTypeMismatch}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Op       string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Resource != "" {
		b.WriteString(" on ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Kind must match; Phase must
// match only when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the resource the error refers to
func (b *Builder) Resource(r string) *Builder {
	b.err.Resource = r
	return b
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Destroyed creates an already-destroyed error
func Destroyed(phase Phase, resource, op string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindDestroyed,
		Resource: resource,
		Op:       op,
		Detail:   "resource already destroyed",
	}
}

// TornDown creates the error delivered to tasks still queued when their
// resource group is torn down
func TornDown(resource, op string) *Error {
	return &Error{
		Phase:    PhaseQueue,
		Kind:     KindTornDown,
		Resource: resource,
		Op:       op,
		Detail:   "resource destroyed while operation pending",
	}
}

// NativeFailure wraps an error reported by the native library. The native
// message is kept unmodified as the cause.
func NativeFailure(op string, cause error) *Error {
	return &Error{
		Phase: PhaseNative,
		Kind:  KindNativeFailure,
		Op:    op,
		Cause: cause,
	}
}

// InvalidInput creates an argument or contract violation error
func InvalidInput(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Op:     op,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, op string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Op:     op,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates a write-past-the-window error
func Overflow(phase Phase, resource string, written, capacity int) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Resource: resource,
		Op:       "write",
		Detail:   fmt.Sprintf("%d elements exceed window of %d", written, capacity),
		Value:    written,
	}
}

// Closed creates a closed pool/stream/runtime error
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// CallbackPanic tags a panic raised by caller code that a native call invoked
// synchronously, such as a progress callback
func CallbackPanic(op string, value any) *Error {
	return &Error{
		Phase:  PhaseCallback,
		Kind:   KindCallbackPanic,
		Op:     op,
		Detail: "sync progress callback exception",
		Value:  value,
	}
}

// TypeMismatch creates an identity type mismatch error
func TypeMismatch(resource, want, got string) *Error {
	return &Error{
		Phase:    PhaseRegistry,
		Kind:     KindTypeMismatch,
		Resource: resource,
		Detail:   fmt.Sprintf("registered as %s, requested as %s", got, want),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithResource returns a copy of err naming resource, if err is an *Error
// without one. Other errors are returned unchanged.
func WithResource(err error, resource string) error {
	var e *Error
	if !stderrors.As(err, &e) || e.Resource != "" {
		return err
	}
	c := *e
	c.Resource = resource
	return &c
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is is errors.Is from the standard library, re-exported so callers need a
// single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is errors.Join from the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
