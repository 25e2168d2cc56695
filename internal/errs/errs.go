// Package errs defines the closed error taxonomy shared by the lock and the
// store.
//
// Every failure surfaced by the persistence core is an *Error carrying one of
// four codes:
//
//   - TIMEOUT: a lock or I/O bound elapsed. Carries the bound and operation.
//     Eligible for caller-side retry.
//   - VALIDATION: malformed or disallowed on-disk state, bad path, bad field.
//     Carries the file path. Never fixed by retrying.
//   - MISUSE: the API was called from the wrong context or in the wrong order.
//     Intended to be fixed in code, not handled.
//   - IO: an operating-system failure other than an interrupted call.
//     Eligible for caller-side retry.
//
// Callers switch on CodeOf(err) (or the IsXxx helpers) instead of matching
// concrete error types.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Code categorizes a failure.
type Code string

const (
	// CodeTimeout indicates a bounded wait elapsed.
	CodeTimeout Code = "TIMEOUT"

	// CodeValidation indicates malformed input or disallowed on-disk state.
	CodeValidation Code = "VALIDATION"

	// CodeMisuse indicates a programming error such as the wrong lock
	// convention for the calling context.
	CodeMisuse Code = "MISUSE"

	// CodeIO indicates an operating-system failure.
	CodeIO Code = "IO"
)

// Error is the single concrete error type of the taxonomy.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op is the operation that failed ("load", "save", "acquire", ...).
	Op string

	// Path is the file the operation targeted, if any.
	Path string

	// Timeout is the configured bound for CodeTimeout errors.
	Timeout time.Duration

	// Message is a human-readable cause.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code == CodeTimeout && e.Timeout > 0 {
		fmt.Fprintf(&b, " (timeout %s)", e.Timeout)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may retry the failed operation.
func (e *Error) Retryable() bool {
	return e.Code == CodeTimeout || e.Code == CodeIO
}

// Timeout creates a CodeTimeout error for op bounded by d.
func Timeout(op, path string, d time.Duration, err error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Op:      op,
		Path:    path,
		Timeout: d,
		Message: "not completed within bound",
		Err:     err,
	}
}

// Validation creates a CodeValidation error for path.
func Validation(op, path, format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Op:      op,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationWrap creates a CodeValidation error wrapping err.
func ValidationWrap(op, path string, err error, format string, args ...any) *Error {
	e := Validation(op, path, format, args...)
	e.Err = err
	return e
}

// Misuse creates a CodeMisuse error.
func Misuse(op, format string, args ...any) *Error {
	return &Error{
		Code:    CodeMisuse,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// IO creates a CodeIO error wrapping err.
func IO(op, path string, err error) *Error {
	return &Error{
		Code: CodeIO,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there
// is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout returns true if err is a timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout
}

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsMisuse returns true if err reports a programming error.
func IsMisuse(err error) bool {
	return CodeOf(err) == CodeMisuse
}

// IsIO returns true if err is an I/O failure.
func IsIO(err error) bool {
	return CodeOf(err) == CodeIO
}

// IsRetryable returns true if a caller may retry the operation that produced
// err.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
