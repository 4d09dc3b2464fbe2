package mem

import "fmt"

// Class is the severity class of a library error.
type Class uint8

const (
	ClassFailure Class = iota + 1
	ClassFatal
)

// Error number, following the library's error numbering.
const (
	ErrAppDefined   = 1
	ErrOutOfMemory  = 2
	ErrIllegalArg   = 5
	ErrNotSupported = 6
	ErrAssertion    = 7
	ErrNoWrite      = 8
	ErrUserInterupt = 9
	ErrObjectNull   = 10
	ErrOpenFailed   = 4
)

// Error is an error reported by the library. Error returns the library's
// message unmodified.
type Error struct {
	Msg   string
	Num   int
	Class Class
}

func (e *Error) Error() string { return e.Msg }

func failf(num int, format string, args ...any) *Error {
	return &Error{Class: ClassFailure, Num: num, Msg: fmt.Sprintf(format, args...)}
}
