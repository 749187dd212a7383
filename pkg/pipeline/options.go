package pipeline

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/loftwing/relay/pkg/transport"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithTokenAccessor wires the credential store used for token injection
// and refresh persistence.
func WithTokenAccessor(ta TokenAccessor) Option {
	return func(c *Client) { c.authTokens = ta }
}

// WithRefresh enables refresh-on-401 with the given refresh capability and
// optional failure hook (e.g. a sign-out trigger). The hook fires exactly
// once per failed refresh operation.
func WithRefresh(fn RefreshFunc, onFailed func()) Option {
	return func(c *Client) {
		c.authRefresh = fn
		c.authRefreshFailed = onFailed
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus collection.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRateLimiter gates request dispatch on the given limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTracerProvider sources the pipeline's tracer from the given provider
// instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// RequestOption adjusts a single request built by the Get/Post/Put/Patch/
// Delete helpers.
type RequestOption func(*transport.Request)

// WithDedupKey overrides the deduplication key (default: request path).
func WithDedupKey(key string) RequestOption {
	return func(r *transport.Request) { r.DedupKey = key }
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *transport.Request) { r.SetHeader(key, value) }
}

func newRequest(method, path string, body []byte, opts []RequestOption) *transport.Request {
	req := &transport.Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return req
}
