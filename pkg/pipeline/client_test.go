package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/loftwing/relay/pkg/transport"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport is required")

	cfg := DefaultConfig()
	cfg.BackoffMultiplier = 0.5
	_, err = New(&fakeTransport{}, cfg)
	require.Error(t, err)
}

func TestDo_RejectsIncompleteRequests(t *testing.T) {
	client := newTestClient(t, &fakeTransport{}, fastConfig())

	for _, req := range []*transport.Request{
		nil,
		{Method: "GET"},
		{Path: "/users"},
	} {
		_, err := client.Do(context.Background(), req)
		require.Error(t, err)
		assert.True(t, transport.IsKind(err, transport.KindUnknown))
	}
}

func TestDo_DedupKeyDefaultsToPath(t *testing.T) {
	ft := &fakeTransport{fn: func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(200)
	}}
	client := newTestClient(t, ft, fastConfig())

	resp, err := client.Get(context.Background(), "/users/42")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "/users/42", ft.call(0).path)
	assert.Equal(t, "/users/42", ft.calls[0].dedupKey)
}

func TestDo_DedupKeyOption(t *testing.T) {
	ft := &fakeTransport{fn: func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(200)
	}}
	client := newTestClient(t, ft, fastConfig())

	_, err := client.Get(context.Background(), "/search?q=a", WithDedupKey("search"))
	require.NoError(t, err)
	assert.Equal(t, "search", ft.calls[0].dedupKey)
}

func TestDo_CustomDedupKeyFunc(t *testing.T) {
	cfg := fastConfig()
	cfg.DedupKey = func(req *transport.Request) string {
		return req.Method + " " + req.Path
	}
	ft := &fakeTransport{fn: func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(200)
	}}
	client := newTestClient(t, ft, cfg)

	_, err := client.Delete(context.Background(), "/items/1")
	require.NoError(t, err)
	assert.Equal(t, "DELETE /items/1", ft.calls[0].dedupKey)
}

func TestDo_RequestHeaders(t *testing.T) {
	ft := &fakeTransport{fn: func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(200)
	}}
	client := newTestClient(t, ft, fastConfig())

	_, err := client.Post(context.Background(), "/items", []byte(`{"a":1}`),
		WithHeader("X-Tenant", "acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", ft.calls[0].headers["X-Tenant"])
	assert.Equal(t, []byte(`{"a":1}`), ft.calls[0].body)
}

func TestDo_RateLimiterHonoursContext(t *testing.T) {
	// A limiter with no burst never admits a request, so Do must give up
	// when the context does.
	ft := &fakeTransport{}
	client := newTestClient(t, ft, fastConfig(),
		WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	// Exhaust the single burst slot.
	ft.fn = func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(200)
	}
	_, err := client.Get(context.Background(), "/a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, "/b")
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindTimeout))
	assert.Equal(t, 0, client.registry.len())
}

func TestDo_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ft := &fakeTransport{fn: func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Attempt == 0 {
			return status(503)
		}
		return status(200)
	}}
	client := newTestClient(t, ft, fastConfig(), WithMetrics(m))

	_, err := client.Get(context.Background(), "/metrics-probe")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retries))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inflight))

	ft.fn = func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return status(404)
	}
	_, err = client.Get(context.Background(), "/missing-thing")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "not_found")))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.requestStarted()
	m.requestFinished("GET", nil, time.Millisecond)
	m.retryObserved()
	m.refreshObserved(false)
}
