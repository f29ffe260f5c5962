// Package errs defines the coded errors surfaced by reading operations.
//
// Domain failures (INVALID_ARGUMENT, DUPLICATE_ISBN) are expected outcomes of
// bad input. Faults (LOCK_TIMEOUT, INTERNAL) mean the operation could not run.
// Both reach the caller as a plain message; the code decides how they are logged.
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error class.
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeDuplicateISBN   Code = "DUPLICATE_ISBN"
	CodeLockTimeout     Code = "LOCK_TIMEOUT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// Sentinels for errors.Is; matching is by code only.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrDuplicateISBN   = &Error{Code: CodeDuplicateISBN, Message: "a book with this ISBN already exists"}
	ErrLockTimeout     = &Error{Code: CodeLockTimeout, Message: "timed out waiting for the write lock"}
	ErrInternal        = &Error{Code: CodeInternal, Message: "internal error"}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// InvalidArgument reports a missing or malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// DuplicateISBN reports an attempt to register an ISBN that is already present.
func DuplicateISBN(isbn string) *Error {
	return &Error{Code: CodeDuplicateISBN, Message: fmt.Sprintf("a book with ISBN %s already exists", isbn)}
}

// LockTimeout wraps the reason the write gate could not be acquired.
func LockTimeout(cause error) *Error {
	return &Error{Code: CodeLockTimeout, Message: ErrLockTimeout.Message, cause: cause}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, cause: cause}
}

// IsDomain reports whether err is an expected domain failure rather than a fault.
func IsDomain(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrDuplicateISBN)
}

// CodeOf returns the code carried by err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
