package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loftwing/relay/pkg/transport"
)

// fakeTransport scripts transport outcomes and records every call.
type fakeTransport struct {
	mu    sync.Mutex
	calls []fakeCall

	// fn produces the outcome for each call. Required.
	fn func(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

type fakeCall struct {
	method    string
	path      string
	dedupKey  string
	authValue string
	attempt   int
	headers   map[string]string
	body      []byte
	at        time.Time
}

func (f *fakeTransport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{
		method:    req.Method,
		path:      req.Path,
		dedupKey:  req.DedupKey,
		authValue: req.Header("Authorization"),
		attempt:   req.Attempt,
		headers:   headers,
		body:      req.Body,
		at:        time.Now(),
	})
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) call(i int) fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeTransport) authValues() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.authValue
	}
	return out
}

// status returns a scripted response outcome.
func status(code int) (*transport.Response, error) {
	return &transport.Response{StatusCode: code, Body: []byte("{}")}, nil
}

// fastConfig returns a config with millisecond backoff for tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, ft transport.Transport, cfg Config, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(ft, cfg, opts...)
	require.NoError(t, err)
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
