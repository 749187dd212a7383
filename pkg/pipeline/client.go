// Package pipeline coordinates the request lifecycle around a pluggable
// transport: bearer-token injection with single-flight refresh-on-401,
// bounded exponential-backoff retry for transient failures, and
// deduplication/cancellation of in-flight requests by logical endpoint
// identity.
//
// Every failure surfaced by a Client is a *transport.NetworkError; no
// unclassified errors escape.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/loftwing/relay/pkg/transport"
)

const tracerName = "github.com/loftwing/relay"

// Client is the resilient HTTP pipeline. Construct with New; the zero
// value is not usable. A Client is safe for concurrent use.
type Client struct {
	cfg      Config
	retrier  *retrier
	auth     *authCoordinator
	registry *registry
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  *Metrics

	authTokens        TokenAccessor
	authRefresh       RefreshFunc
	authRefreshFailed func()
}

// New creates a pipeline Client around the given transport.
func New(t transport.Transport, cfg Config, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		registry: newRegistry(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.auth = &authCoordinator{
		tokens:          c.authTokens,
		refresh:         c.authRefresh,
		onRefreshFailed: c.authRefreshFailed,
		headerName:      cfg.HeaderName,
		tokenPrefix:     cfg.TokenPrefix,
		logger:          c.logger,
		metrics:         c.metrics,
	}
	c.retrier = &retrier{
		transport: t,
		cfg:       cfg,
		logger:    c.logger,
		metrics:   c.metrics,
	}
	return c, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*transport.Response, error) {
	return c.Do(ctx, newRequest("GET", path, nil, opts))
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts ...RequestOption) (*transport.Response, error) {
	return c.Do(ctx, newRequest("POST", path, body, opts))
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, path string, body []byte, opts ...RequestOption) (*transport.Response, error) {
	return c.Do(ctx, newRequest("PUT", path, body, opts))
}

// Patch issues a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, path string, body []byte, opts ...RequestOption) (*transport.Response, error) {
	return c.Do(ctx, newRequest("PATCH", path, body, opts))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*transport.Response, error) {
	return c.Do(ctx, newRequest("DELETE", path, nil, opts))
}

// CancelRequest aborts the in-flight request with the given dedup key, if
// any. Its caller observes a cancelled NetworkError.
func (c *Client) CancelRequest(key string) {
	c.registry.cancel(key)
}

// CancelAllRequests aborts every in-flight request.
func (c *Client) CancelAllRequests() {
	c.registry.cancelAll()
}

// Do runs one logical request through the full pipeline: dedup
// registration, token injection, retry, and refresh-on-401. The returned
// error, when non-nil, is always a *transport.NetworkError.
func (c *Client) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil || req.Method == "" || req.Path == "" {
		return nil, &transport.NetworkError{Kind: transport.KindUnknown, Message: "request method and path are required"}
	}

	key := req.DedupKey
	if key == "" {
		key = c.cfg.DedupKey(req)
		req.DedupKey = key
	}

	// Registering under a taken key cancels the previous holder
	// (cancel-and-replace). The handle's context is what every suspension
	// point below observes.
	h := c.registry.acquire(ctx, key)
	defer c.registry.release(h)
	ctx = h.ctx

	start := time.Now()
	c.metrics.requestStarted()

	ctx, span := c.tracer.Start(ctx, "relay.request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
		attribute.String("relay.dedup_key", key),
	))

	resp, nerr := c.dispatch(ctx, req)

	if nerr != nil {
		span.RecordError(nerr)
		span.SetStatus(codes.Error, string(nerr.Kind))
		c.logger.Warn("request failed",
			"method", req.Method,
			"path", req.Path,
			"kind", nerr.Kind,
			"status", nerr.StatusCode,
		)
	} else {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	c.metrics.requestFinished(req.Method, nerr, time.Since(start))

	if nerr != nil {
		return nil, nerr
	}
	return resp, nil
}

// dispatch performs injection, retry, and at most one refresh-and-replay
// cycle for this logical request.
func (c *Client) dispatch(ctx context.Context, req *transport.Request) (*transport.Response, *transport.NetworkError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, cancelledError(ctx)
			}
			// Wait refuses up front when the deadline cannot admit a slot.
			return nil, &transport.NetworkError{Kind: transport.KindTimeout, Message: "rate limiter: " + err.Error(), Cause: err}
		}
	}

	// Proactive refresh: an already-expired JWT would 401 anyway, so
	// resolve it before spending an attempt.
	if tok, ok := c.auth.ensureFresh(ctx); ok {
		c.auth.injectToken(req, tok)
	} else {
		c.auth.inject(ctx, req)
	}

	resp, nerr := c.retrier.execute(ctx, req)
	if nerr == nil || nerr.Kind != transport.KindUnauthorized || !c.auth.canRefresh() {
		return resp, nerr
	}

	// 401: join the shared refresh, then replay the original request with
	// the new token. A replay that 401s again is surfaced as-is; one
	// refresh cycle per logical request.
	newTok, rerr := c.auth.handleUnauthorized(ctx, nerr)
	if rerr != nil {
		return nil, rerr
	}

	replay := req.Clone()
	c.auth.injectToken(replay, newTok)
	return c.retrier.execute(ctx, replay)
}
