package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies network failures for routing, retry, and refresh
// decisions.
type ErrorKind string

const (
	// KindNetwork indicates connection, DNS, or socket errors.
	KindNetwork ErrorKind = "network"

	// KindTimeout indicates a connect, send, or receive timeout.
	KindTimeout ErrorKind = "timeout"

	// KindUnauthorized indicates a 401 response. Never retried directly;
	// the auth coordinator resolves it via token refresh.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindForbidden indicates a 403 response.
	KindForbidden ErrorKind = "forbidden"

	// KindNotFound indicates a 404 response.
	KindNotFound ErrorKind = "not_found"

	// KindClient indicates any other 4xx response.
	KindClient ErrorKind = "client_error"

	// KindServer indicates a 5xx response.
	KindServer ErrorKind = "server_error"

	// KindCancelled indicates the request's context was cancelled.
	// Short-circuits both retry and refresh queueing.
	KindCancelled ErrorKind = "cancelled"

	// KindUnknown indicates an unclassifiable failure.
	KindUnknown ErrorKind = "unknown"
)

// Retryable reports whether failures of this kind are transient and safe to
// retry. It is a pure function of the kind: only network, timeout, and
// server errors qualify.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// NetworkError is the single failure type surfaced by the pipeline.
// It is immutable once constructed.
type NetworkError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// StatusCode is the HTTP status code, or zero for non-HTTP failures.
	StatusCode int

	// Message is a human-readable description, safe to log and display.
	Message string

	// Cause is the underlying error, if any. May contain sensitive detail;
	// prefer Message for user-facing output.
	Cause error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error is transient.
func (e *NetworkError) Retryable() bool {
	return e.Kind.Retryable()
}

// IsKind reports whether err is a NetworkError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == kind
}

// IsStatusCode reports whether err is a NetworkError carrying the given
// HTTP status code.
func IsStatusCode(err error, code int) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.StatusCode == code
}
