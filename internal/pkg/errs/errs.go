// Package errs defines the coded error type shared by every layer of the
// checkout pipeline.
//
// Each failure carries a Code so transports can map it mechanically
// (validation → 400, conflict → 409, ...) and callers can branch on the
// category without inspecting message text.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers and for HTTP mapping.
type Code string

const (
	// CodeValidation marks malformed input rejected before any lock is taken.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound marks a missing aggregate.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict marks illegal state transitions, divergent idempotency
	// payloads and stock shortages. The response should carry the current
	// authoritative state.
	CodeConflict Code = "CONFLICT"

	// CodeTimeout marks a bounded wait that expired (lock wait, PG call).
	// Safe to retry with the same idempotency key.
	CodeTimeout Code = "TIMEOUT"

	// CodeReconciliation marks amount mismatches and orphaned records.
	// Never retried silently; requires a reconciliation pass.
	CodeReconciliation Code = "RECONCILIATION"

	// CodeDependency marks an infrastructure failure (store, broker).
	CodeDependency Code = "DEPENDENCY"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the code from err, walking the wrap chain.
// Errors without a code report CodeDependency.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeDependency
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
