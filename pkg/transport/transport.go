// Package transport defines the boundary between the relay pipeline and the
// code that actually performs network I/O.
//
// The pipeline never constructs a Transport; it receives one and invokes it.
// A Transport issues exactly one network call per Execute invocation and
// reports failures either as a raw error (connection failure, timeout,
// cancellation) or as a Response carrying a non-2xx status code. Classify
// turns either outcome into a typed NetworkError for routing, retry, and
// refresh decisions.
package transport

import (
	"context"
	"net/textproto"
)

// Transport executes a single network call.
// Implementations must honor ctx cancellation and must not retry internally;
// retry, deduplication, and token refresh are handled by the pipeline.
type Transport interface {
	// Execute sends one request and returns the response.
	// A response with a non-2xx status is returned as a Response, not an
	// error; errors are reserved for failures to obtain a response at all.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request is a transport-agnostic logical request. It is created per call
// and owned by the pipeline for its lifetime.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE, PATCH, HEAD).
	Method string

	// Path is the request path, resolved against the transport's base URL.
	// An absolute URL is passed through unchanged.
	Path string

	// Headers holds request headers under canonical MIME keys.
	// Use SetHeader/Header for case-insensitive access. May be nil.
	Headers map[string]string

	// Body is the request body. May be nil.
	Body []byte

	// DedupKey identifies the logical endpoint for deduplication.
	// Empty means the pipeline derives it (default: Path).
	DedupKey string

	// Attempt is the zero-based attempt counter, maintained by the pipeline.
	Attempt int
}

// SetHeader sets a header, canonicalizing the key so lookups are
// case-insensitive.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[textproto.CanonicalMIMEHeaderKey(key)] = value
}

// Header returns the header value for key, or "" if unset.
func (r *Request) Header(key string) string {
	return r.Headers[textproto.CanonicalMIMEHeaderKey(key)]
}

// Clone returns a deep copy of the request with the attempt counter reset.
// Replays after a token refresh use a clone so header mutation on the replay
// never races with the original.
func (r *Request) Clone() *Request {
	out := &Request{
		Method:   r.Method,
		Path:     r.Path,
		DedupKey: r.DedupKey,
	}
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Response is a transport-agnostic response.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers contains response headers.
	Headers map[string][]string

	// Body is the response body, fully read.
	Body []byte
}

// Header returns the first response header value for key, or "".
func (r *Response) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	vs := r.Headers[textproto.CanonicalMIMEHeaderKey(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
