package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a caller-visible failure. Every error crossing the
// orchestration boundary carries exactly one kind.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidState      Kind = "invalid_state"
	KindIncompletePricing Kind = "incomplete_pricing"
	KindInvalidAmount     Kind = "invalid_amount"
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindUpstreamPayment   Kind = "upstream_payment"
	KindInternal          Kind = "internal"
)

// Error is a classified application error.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so sentinel instances can be
// compared with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, KindInternal if unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Retryable reports whether callers may safely retry the failed operation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindUpstreamPayment:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindIncompletePricing:
		return http.StatusUnprocessableEntity
	case KindInvalidAmount, KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamPayment:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
