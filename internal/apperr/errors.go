// Package apperr implements the error taxonomy of spec §7 as a small tagged
// variant, replacing the teacher's string-matching error classification
// (booking_handler.go used strings.Contains(err.Error(), "...")) with an
// explicit Kind carried on the error itself.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds surfaced at the core's boundary (§7).
type Kind string

const (
	KindValidation           Kind = "validation"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindPolicyDenied         Kind = "policy_denied"
	KindConflict             Kind = "conflict"
	KindOptionInvalid        Kind = "option_invalid"
	KindFrequentNotRegistered Kind = "frequent_not_registered"
	KindInternal             Kind = "internal"
)

// Error is a classified application error. Handlers map Kind to an HTTP
// status; services never need to know about HTTP.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for errors
// that were never classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
