package commands

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"

	"github.com/loftwing/relay/internal/config"
	"github.com/loftwing/relay/pkg/httptransport"
	"github.com/loftwing/relay/pkg/pipeline"
	"github.com/loftwing/relay/pkg/token"
)

// buildClient assembles the full pipeline from the CLI configuration:
// HTTP transport, token store (keyring or environment), and optional
// OAuth2 refresh.
func buildClient(cfg *config.Config, baseURL string) (*pipeline.Client, error) {
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no base URL: set base_url in the config file or pass an absolute URL")
	}

	tr, err := httptransport.New(httptransport.Config{
		BaseURL: baseURL,
		Timeout: cfg.Timeout.Std(),
	}, logger)
	if err != nil {
		return nil, err
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.HeaderName = cfg.Auth.Header
	pcfg.TokenPrefix = cfg.Auth.Prefix
	pcfg.MaxRetries = cfg.Retry.MaxRetriesOrDefault()
	pcfg.InitialDelay = cfg.Retry.InitialDelay.Std()
	pcfg.BackoffMultiplier = cfg.Retry.BackoffMultiplier
	pcfg.MaxDelay = cfg.Retry.MaxDelay.Std()
	pcfg.RetryNonIdempotent = cfg.Retry.NonIdempotentOrDefault()

	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	store, err := buildTokenStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, pipeline.WithTokenAccessor(store))
	}

	if cfg.Auth.TokenURL != "" {
		refresher := token.OAuth2Refresher(&oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: os.Getenv(cfg.Auth.ClientSecretEnv),
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.Auth.TokenURL},
		})
		opts = append(opts, pipeline.WithRefresh(refresher, func() {
			logger.Warn("token refresh failed; credentials may need to be renewed")
		}))
	}

	return pipeline.New(tr, pcfg, opts...)
}

// buildTokenStore prefers the system keyring when configured, falling back
// to environment variables. Returns nil when no credentials are available,
// which leaves requests unauthenticated.
func buildTokenStore(cfg *config.Config) (pipeline.TokenAccessor, error) {
	if cfg.Auth.KeyringService != "" {
		return token.NewKeyringStore(cfg.Auth.KeyringService)
	}

	access := os.Getenv(cfg.Auth.TokenEnv)
	refresh := os.Getenv(cfg.Auth.RefreshTokenEnv)
	if access == "" && refresh == "" {
		return nil, nil
	}
	return token.NewMemoryStore(access, refresh), nil
}
