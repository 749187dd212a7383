package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/loftwing/relay/pkg/transport"
)

// retrier wraps transport execution with bounded exponential backoff.
//
// Attempt 0 runs immediately. Retry N (zero-based) waits
// InitialDelay * BackoffMultiplier^N, capped at MaxDelay, plus 0-100ms of
// jitter, so the first retry always waits at least InitialDelay. Retryable
// 5xx responses carrying a Retry-After header raise the delay to that
// value, still capped at MaxDelay.
type retrier struct {
	transport transport.Transport
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
}

// execute runs req through the transport, retrying transient failures.
// Within one logical request attempts are strictly sequential. Returns
// either a successful response or the final classified error unchanged.
func (r *retrier) execute(ctx context.Context, req *transport.Request) (*transport.Response, *transport.NetworkError) {
	maxAttempts := r.cfg.MaxRetries + 1
	if !isIdempotent(req.Method) && !r.cfg.RetryNonIdempotent {
		maxAttempts = 1
	}

	var lastErr *transport.NetworkError
	var lastResp *transport.Response

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt-1, lastResp)
			r.logger.Debug("retrying request",
				"method", req.Method,
				"path", req.Path,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, cancelledError(ctx)
			}
			r.metrics.retryObserved()
		}

		if ctx.Err() != nil {
			return nil, cancelledError(ctx)
		}

		req.Attempt = attempt
		resp, err := r.transport.Execute(ctx, req)
		nerr := transport.Classify(resp, err)
		if nerr == nil {
			return resp, nil
		}

		// Cancellation short-circuits the loop; non-retryable kinds are
		// surfaced to the caller unchanged.
		if nerr.Kind == transport.KindCancelled {
			if ctx.Err() != nil {
				// Carry the cancellation cause (superseded, cancelled by
				// caller, deadline) instead of the bare transport error.
				return nil, cancelledError(ctx)
			}
			return nil, nerr
		}
		if !nerr.Retryable() {
			return nil, nerr
		}

		lastErr = nerr
		lastResp = resp
	}

	return nil, lastErr
}

// backoff computes the delay before retry retryIndex (zero-based).
func (r *retrier) backoff(retryIndex int, lastResp *transport.Response) time.Duration {
	delay := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffMultiplier, float64(retryIndex))
	if r.cfg.MaxDelay > 0 && delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}

	d := time.Duration(delay)
	if ra := parseRetryAfter(lastResp); ra > d {
		d = ra
		if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
			d = r.cfg.MaxDelay
		}
	}

	// Jitter: 0-100ms, so concurrent retries against a struggling server
	// spread out.
	return d + time.Duration(rand.Int63n(101))*time.Millisecond
}

// isIdempotent reports whether the method is safe to re-issue blindly.
// POST and PATCH are still retried when the config allows it; that choice
// carries at-least-once semantics and is documented on Config.
func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter extracts a Retry-After delay from a response, supporting
// both delta-seconds and HTTP-date formats. Returns 0 when absent or
// malformed.
func parseRetryAfter(resp *transport.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
