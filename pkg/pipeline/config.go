package pipeline

import (
	"fmt"
	"time"

	"github.com/loftwing/relay/pkg/transport"
)

// Config controls retry, backoff, auth header, and deduplication behavior.
type Config struct {
	// HeaderName is the header carrying the bearer token.
	// Default: "Authorization".
	HeaderName string

	// TokenPrefix is prepended to the token in the auth header.
	// Default: "Bearer".
	TokenPrefix string

	// MaxRetries is the number of retries after the initial attempt, so a
	// request is attempted at most MaxRetries+1 times. Default: 3.
	MaxRetries int

	// InitialDelay is the backoff before the first retry. Default: 500ms.
	InitialDelay time.Duration

	// BackoffMultiplier is the exponential backoff factor. The delay before
	// retry N (zero-based) is InitialDelay * BackoffMultiplier^N, so the
	// first retry always waits at least InitialDelay. Default: 2.0.
	BackoffMultiplier float64

	// MaxDelay caps the computed backoff, Retry-After included.
	// Default: 30s.
	MaxDelay time.Duration

	// RetryNonIdempotent also retries POST and PATCH under the same policy.
	// Default (via DefaultConfig): true. Retrying non-idempotent writes
	// gives at-least-once semantics; callers needing exactly-once must set
	// this to false.
	RetryNonIdempotent bool

	// DedupKey derives the deduplication key for a request whose DedupKey
	// field is empty. Default: the request path.
	DedupKey func(*transport.Request) string
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		HeaderName:         "Authorization",
		TokenPrefix:        "Bearer",
		MaxRetries:         3,
		InitialDelay:       500 * time.Millisecond,
		BackoffMultiplier:  2.0,
		MaxDelay:           30 * time.Second,
		RetryNonIdempotent: true,
	}
}

// Validate checks the configuration and fills zero values with defaults for
// the fields where a zero value is never meaningful.
func (c *Config) Validate() error {
	if c.HeaderName == "" {
		c.HeaderName = "Authorization"
	}
	if c.TokenPrefix == "" {
		c.TokenPrefix = "Bearer"
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", c.InitialDelay)
	}
	if c.MaxRetries > 0 {
		if c.BackoffMultiplier < 1.0 {
			return fmt.Errorf("backoff_multiplier must be >= 1.0, got %v", c.BackoffMultiplier)
		}
		if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
			return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
		}
	}
	if c.DedupKey == nil {
		c.DedupKey = func(req *transport.Request) string { return req.Path }
	}
	return nil
}
