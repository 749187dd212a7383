package token

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth2Refresher adapts an oauth2.Config into a refresh capability for the
// pipeline: given a refresh token, it exchanges it at the configured token
// endpoint and returns the new access token.
//
// The returned function matches pipeline.RefreshFunc.
func OAuth2Refresher(cfg *oauth2.Config) func(ctx context.Context, refreshToken string) (string, error) {
	return func(ctx context.Context, refreshToken string) (string, error) {
		if refreshToken == "" {
			return "", fmt.Errorf("no refresh token available")
		}
		src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return "", fmt.Errorf("exchanging refresh token: %w", err)
		}
		return tok.AccessToken, nil
	}
}
