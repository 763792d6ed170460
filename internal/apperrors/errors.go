// Package apperrors defines the kinded errors shared by the services and
// translated into HTTP statuses by the gateway.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation to callers.
type Kind int

const (
	// KindInternal marks unexpected store or credential failures.
	KindInternal Kind = iota
	// KindValidation marks malformed, oversized or empty input.
	KindValidation
	// KindAuthentication marks missing, invalid or expired credentials.
	KindAuthentication
	// KindForbidden marks an authenticated actor without rights to the resource.
	KindForbidden
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound
	// KindConflict marks a duplicate unique key.
	KindConflict
	// KindTimeout marks a store round trip that ran out of time.
	KindTimeout
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable code and an optional cause.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the stable error code.
func (e *Error) Code() string {
	return e.code
}

// New constructs a kinded error.
func New(kind Kind, code string, cause error) error {
	return &Error{kind: kind, code: code, err: cause}
}

func Validation(code string, cause error) error {
	return New(KindValidation, code, cause)
}

func Authentication(code string, cause error) error {
	return New(KindAuthentication, code, cause)
}

func Forbidden(code string, cause error) error {
	return New(KindForbidden, code, cause)
}

func NotFound(code string, cause error) error {
	return New(KindNotFound, code, cause)
}

func Conflict(code string, cause error) error {
	return New(KindConflict, code, cause)
}

// Store wraps an unexpected persistence failure using the "operation.reason"
// code convention. Context deadlines and cancellations become KindTimeout.
func Store(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		return New(KindTimeout, code, cause)
	}
	return New(KindInternal, code, cause)
}

// KindOf returns the kind of err, or KindInternal when err is not kinded.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or the empty string when err is not kinded.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}
