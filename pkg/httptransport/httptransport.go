// Package httptransport provides the default transport.Transport built on
// net/http: TLS 1.2+, connection pooling, a per-attempt timeout, request
// logging with sensitive values redacted, and X-Request-ID correlation.
//
// It performs exactly one network call per Execute and never retries;
// resilience lives in pkg/pipeline.
package httptransport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loftwing/relay/pkg/transport"
)

// Config configures the HTTP transport.
type Config struct {
	// BaseURL is prepended to relative request paths. Required.
	BaseURL string

	// Timeout is the per-attempt timeout. Default: 30s.
	Timeout time.Duration

	// UserAgent is set on every request. Default: "relay/1.0".
	UserAgent string
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", c.Timeout)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "relay/1.0"
	}
	return nil
}

// Client implements transport.Transport over net/http.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates an HTTP transport with secure TLS defaults and pooling.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http transport config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: base, Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Execute issues one HTTP call. Non-2xx statuses are returned in the
// Response, not as errors; errors mean no response was obtained.
func (c *Client) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()

	logURL := sanitizeURL(httpReq.URL)
	if err != nil {
		c.logger.Warn("http request failed",
			"method", req.Method,
			"url", logURL,
			"attempt", req.Attempt,
			"duration_ms", elapsed,
			"error", err.Error(),
		)
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	level := slog.LevelDebug
	if httpResp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "http request",
		"method", req.Method,
		"url", logURL,
		"attempt", req.Attempt,
		"status", httpResp.StatusCode,
		"duration_ms", elapsed,
	)

	return &transport.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}, nil
}

// sanitizeURL redacts query parameters that look like credentials before a
// URL reaches the logs.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, sensitive := range []string{"token", "key", "secret", "password", "auth", "credential"} {
			if strings.Contains(lower, sensitive) {
				q.Set(param, "[REDACTED]")
				break
			}
		}
	}
	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}
