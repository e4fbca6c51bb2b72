package core

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FatalError is the panic value of every unrecoverable failure in the
// renderer core: contract violations, resource exhaustion and device
// failures. It is not meant to be recovered by callers.
type FatalError struct {
	File      string
	Line      int
	Condition string
	Message   string
	Err       error
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("%s:%d: ", e.File, e.Line)
	if e.Condition != "" {
		msg += fmt.Sprintf("assertion '%s' failed: ", e.Condition)
	}
	msg += e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Assert panics with a *FatalError when cond is false. condition is the
// textual form of the checked expression.
func Assert(cond bool, condition string, err error, format string, args ...interface{}) {
	if cond {
		return
	}
	panic(newFatalError(2, condition, err, format, args...))
}

// Fatal panics with a *FatalError wrapping err.
func Fatal(err error, format string, args ...interface{}) {
	panic(newFatalError(2, "", err, format, args...))
}

func newFatalError(skip int, condition string, err error, format string, args ...interface{}) *FatalError {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "???"
	}
	return &FatalError{
		File:      filepath.Base(file),
		Line:      line,
		Condition: condition,
		Message:   fmt.Sprintf(format, args...),
		Err:       err,
	}
}
