// Package apperr defines the error kinds shared by the proxy, the store and
// the HTTP layer, and the single mapping from kind to HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUpstream     Kind = "upstream"
	KindConnectivity Kind = "connectivity"
	KindTimeout      Kind = "timeout"
	KindTaskFailed   Kind = "task_failed"
	KindTaskTimeout  Kind = "task_timeout"
	KindInternal     Kind = "internal"
)

// Error is a classified error. Message is safe to show to the caller;
// Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrTaskTimeout)
// works for any task timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrConnectivity = &Error{Kind: KindConnectivity}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrTaskFailed   = &Error{Kind: KindTaskFailed}
	ErrTaskTimeout  = &Error{Kind: KindTaskTimeout}
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

func Connectivity(msg string, err error) *Error {
	return &Error{Kind: KindConnectivity, Message: msg, Err: err}
}

func Timeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

func TaskFailed(msg string) *Error {
	return &Error{Kind: KindTaskFailed, Message: msg}
}

func TaskTimeout(msg string) *Error {
	return &Error{Kind: KindTaskTimeout, Message: msg}
}

// WithDetails returns e with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code returned to the caller.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream, KindTaskFailed:
		return http.StatusBadGateway
	case KindConnectivity:
		return http.StatusServiceUnavailable
	case KindTimeout, KindTaskTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message shown to the caller. Unclassified errors never
// leak their text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

// DetailsOf returns the details attached to err, if any.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
