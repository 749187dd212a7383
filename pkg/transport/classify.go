package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Classify maps a transport outcome into a typed NetworkError.
//
// The mapping is total: any non-nil error or non-2xx response yields a
// NetworkError, with unclassifiable inputs falling into KindUnknown. A
// successful outcome (2xx/3xx response with nil error) yields nil.
func Classify(resp *Response, err error) *NetworkError {
	if err != nil {
		return classifyError(err)
	}
	if resp == nil {
		return nil
	}
	return classifyStatus(resp.StatusCode)
}

func classifyError(err error) *NetworkError {
	// Already classified; pass through unchanged.
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}

	if errors.Is(err, context.Canceled) {
		return &NetworkError{Kind: KindCancelled, Message: "request cancelled", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Kind: KindTimeout, Message: "request timed out", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Kind: KindTimeout, Message: "request timed out", Cause: err}
	}

	// url.Error wraps the transport-level cause; classify that instead.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		inner := classifyError(urlErr.Err)
		inner.Cause = err
		return inner
	}

	if isConnectionError(err) {
		return &NetworkError{Kind: KindNetwork, Message: "connection failed", Cause: err}
	}

	return &NetworkError{Kind: KindUnknown, Message: err.Error(), Cause: err}
}

func classifyStatus(code int) *NetworkError {
	switch {
	case code < 400:
		return nil
	case code == 401:
		return &NetworkError{Kind: KindUnauthorized, StatusCode: code, Message: "unauthorized"}
	case code == 403:
		return &NetworkError{Kind: KindForbidden, StatusCode: code, Message: "forbidden"}
	case code == 404:
		return &NetworkError{Kind: KindNotFound, StatusCode: code, Message: "not found"}
	case code < 500:
		return &NetworkError{Kind: KindClient, StatusCode: code, Message: "client error"}
	case code < 600:
		return &NetworkError{Kind: KindServer, StatusCode: code, Message: "server error"}
	default:
		return &NetworkError{Kind: KindUnknown, StatusCode: code, Message: "unexpected status"}
	}
}

// isConnectionError reports whether err is a network-level failure such as
// a refused or reset connection or a DNS resolution error.
func isConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}
	return false
}
