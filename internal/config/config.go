// Package config loads the relay CLI configuration from a YAML file, with
// environment variable overrides for credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration wraps time.Duration so YAML values like "500ms" parse naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete relay CLI configuration.
type Config struct {
	// BaseURL is the API base URL requests are resolved against.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-attempt transport timeout. Default: 30s.
	Timeout Duration `yaml:"timeout,omitempty"`

	Retry RetryConfig `yaml:"retry,omitempty"`
	Auth  AuthConfig  `yaml:"auth,omitempty"`
}

// RetryConfig configures the pipeline's retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3.
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// InitialDelay is the backoff before the first retry. Default: 500ms.
	InitialDelay Duration `yaml:"initial_delay,omitempty"`

	// BackoffMultiplier is the exponential factor. Default: 2.0.
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty"`

	// MaxDelay caps the computed backoff. Default: 30s.
	MaxDelay Duration `yaml:"max_delay,omitempty"`

	// NonIdempotent also retries POST/PATCH (at-least-once semantics).
	// Default: true.
	NonIdempotent *bool `yaml:"non_idempotent,omitempty"`
}

// AuthConfig configures token storage and refresh.
type AuthConfig struct {
	// Header is the auth header name. Default: "Authorization".
	Header string `yaml:"header,omitempty"`

	// Prefix is the token prefix. Default: "Bearer".
	Prefix string `yaml:"prefix,omitempty"`

	// KeyringService stores tokens in the system keyring under this service
	// name. Empty means tokens come from the environment only.
	KeyringService string `yaml:"keyring_service,omitempty"`

	// TokenEnv names the environment variable holding the access token.
	// Default: RELAY_TOKEN.
	TokenEnv string `yaml:"token_env,omitempty"`

	// RefreshTokenEnv names the environment variable holding the refresh
	// token. Default: RELAY_REFRESH_TOKEN.
	RefreshTokenEnv string `yaml:"refresh_token_env,omitempty"`

	// TokenURL is the OAuth2 token endpoint used for refresh. Empty
	// disables refresh-on-401.
	TokenURL string `yaml:"token_url,omitempty"`

	// ClientID and ClientSecretEnv identify the OAuth2 client; the secret
	// is only ever read from the named environment variable.
	ClientID        string `yaml:"client_id,omitempty"`
	ClientSecretEnv string `yaml:"client_secret_env,omitempty"`
}

// Default returns a Config with documented defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = Duration(30 * time.Second)
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = Duration(500 * time.Millisecond)
	}
	if c.Retry.BackoffMultiplier == 0 {
		c.Retry.BackoffMultiplier = 2.0
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = Duration(30 * time.Second)
	}
	if c.Auth.Header == "" {
		c.Auth.Header = "Authorization"
	}
	if c.Auth.Prefix == "" {
		c.Auth.Prefix = "Bearer"
	}
	if c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = "RELAY_TOKEN"
	}
	if c.Auth.RefreshTokenEnv == "" {
		c.Auth.RefreshTokenEnv = "RELAY_REFRESH_TOKEN"
	}
}

// MaxRetriesOrDefault returns the configured retry count or 3.
func (r RetryConfig) MaxRetriesOrDefault() int {
	if r.MaxRetries == nil {
		return 3
	}
	return *r.MaxRetries
}

// NonIdempotentOrDefault returns the configured flag or true.
func (r RetryConfig) NonIdempotentOrDefault() bool {
	if r.NonIdempotent == nil {
		return true
	}
	return *r.NonIdempotent
}

// Load reads and validates a config file. A missing path returns defaults
// with no base URL; callers decide whether that is acceptable.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return fmt.Errorf("%w: retry.backoff_multiplier must be >= 1.0", ErrInvalidConfig)
	}
	if c.Auth.TokenURL != "" && c.Auth.ClientID == "" {
		return fmt.Errorf("%w: auth.client_id is required when auth.token_url is set", ErrInvalidConfig)
	}
	return nil
}
