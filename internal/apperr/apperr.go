// Package apperr defines the error taxonomy shared by the ingest and read
// paths so HTTP handlers can map failures to status codes without
// string-sniffing underlying errors.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is one of the error categories from the error-handling design.
type Kind int

const (
	// KindInputValidation covers malformed bodies, unknown event types,
	// future timestamps, and zero world ids.
	KindInputValidation Kind = iota
	// KindAuthFailure covers missing or invalid bearer tokens.
	KindAuthFailure
	// KindNotFound covers unknown world/district lookups on read endpoints.
	KindNotFound
	// KindHistoryInconsistency covers an observation that falls inside an
	// existing epoch but disagrees on distinguishing attributes. Never
	// returned to a caller; logged by the reconciler.
	KindHistoryInconsistency
	// KindStoreFailure covers SQL or Redis errors.
	KindStoreFailure
	// KindDeliveryFailure covers a websocket send exception.
	KindDeliveryFailure
)

// Error wraps an underlying error with a Kind for HTTP status mapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindStoreFailure for any
// error that isn't one of ours — an unclassified failure is treated as a
// store failure so it surfaces as a generic 500, never leaking detail.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStoreFailure
}

// StatusCode maps a Kind to the HTTP status the ingest/read surface returns.
func StatusCode(kind Kind) int {
	switch kind {
	case KindInputValidation:
		return http.StatusBadRequest
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
