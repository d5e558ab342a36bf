// Package fault implements the fatal half of the codec's two-tier error
// model: invariant checks that panic with the source location of the failed
// condition. Recoverable conditions (buffer underflow or overflow, short
// segments) are reported through bool returns by the bit I/O and segment
// readers; callers that cannot continue escalate them through Check.
//
// The public Translate entry point recovers *fault.Error at the API boundary
// and returns it as an ordinary error; any other panic is a genuine bug and
// is left alone.
package fault

import (
	"fmt"
	"runtime"
)

// Error is a fatal invariant violation, carrying the file and line of the
// check that failed.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("invariant violated at %s:%d", e.File, e.Line)
	}
	return fmt.Sprintf("%s (%s:%d)", e.Msg, e.File, e.Line)
}

// newError builds an Error pointing skip+1 frames up the stack.
func newError(skip int, msg string) *Error {
	file, line := "?", 0
	if _, f, l, ok := runtime.Caller(skip + 1); ok {
		file, line = f, l
	}
	return &Error{File: file, Line: line, Msg: msg}
}

// Check panics with an *Error when cond is false.
func Check(cond bool, msg string) {
	if !cond {
		panic(newError(1, msg))
	}
}

// Checkf is Check with a formatted message, built only on failure.
func Checkf(cond bool, format string, args ...any) {
	if !cond {
		panic(newError(1, fmt.Sprintf(format, args...)))
	}
}

// Fail unconditionally reports a fatal condition.
func Fail(msg string) {
	panic(newError(1, msg))
}
