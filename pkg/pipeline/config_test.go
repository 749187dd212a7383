package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loftwing/relay/pkg/transport"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "Authorization", cfg.HeaderName)
	assert.Equal(t, "Bearer", cfg.TokenPrefix)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.True(t, cfg.RetryNonIdempotent)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/x", cfg.DedupKey(&transport.Request{Path: "/x"}))
}

func TestConfig_ValidateFillsZeroValues(t *testing.T) {
	cfg := Config{BackoffMultiplier: 1.5}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Authorization", cfg.HeaderName)
	assert.Equal(t, "Bearer", cfg.TokenPrefix)
	assert.NotNil(t, cfg.DedupKey)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.MaxRetries = -1 },
			want:   "max_retries",
		},
		{
			name:   "negative initial delay",
			mutate: func(c *Config) { c.InitialDelay = -time.Second },
			want:   "initial_delay",
		},
		{
			name:   "shrinking backoff",
			mutate: func(c *Config) { c.BackoffMultiplier = 0.5 },
			want:   "backoff_multiplier",
		},
		{
			name: "max delay below initial delay",
			mutate: func(c *Config) {
				c.InitialDelay = time.Minute
				c.MaxDelay = time.Second
			},
			want: "max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_NoRetriesSkipsBackoffChecks(t *testing.T) {
	cfg := Config{MaxRetries: 0, BackoffMultiplier: 0}
	assert.NoError(t, cfg.Validate())
}
