// Package apperr defines the error kinds returned by the transfer and
// notification services. Callers branch on the kind, never on driver errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

// Error kinds.
const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindForbidden       Kind = "forbidden"
	KindUnauthenticated Kind = "unauthenticated"
	KindRateLimited     Kind = "rate_limited"
	KindStore           Kind = "store"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of the same kind, so that
// errors.Is(err, apperr.ErrConflict) works for any conflict error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrStore           = &Error{Kind: KindStore}
)

func newf(kind Kind, format string, a ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

func Validation(format string, a ...any) error   { return newf(KindValidation, format, a...) }
func Conflict(format string, a ...any) error     { return newf(KindConflict, format, a...) }
func NotFound(format string, a ...any) error     { return newf(KindNotFound, format, a...) }
func InvalidState(format string, a ...any) error { return newf(KindInvalidState, format, a...) }
func Forbidden(format string, a ...any) error    { return newf(KindForbidden, format, a...) }
func RateLimited(format string, a ...any) error  { return newf(KindRateLimited, format, a...) }

// Unauthenticated is returned when an operation has no verified actor.
func Unauthenticated() error {
	return &Error{Kind: KindUnauthenticated, Message: "authentication required"}
}

// Store wraps an infrastructure failure. Errors that already carry a kind
// are returned unchanged.
func Store(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStore, Message: message, Err: err}
}

// KindOf returns the kind of err. Unclassified errors count as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStore
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
