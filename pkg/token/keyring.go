package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring entry names under the configured service.
const (
	accessTokenKey  = "access-token"
	refreshTokenKey = "refresh-token"
)

// KeyringStore is a TokenAccessor backed by the system keyring (macOS
// Keychain, Secret Service, Windows Credential Manager). Tokens survive
// process restarts without touching disk in the clear.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed store. The service name scopes
// the entries (typically the application name).
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("keyring service name is required")
	}
	return &KeyringStore{service: service}, nil
}

// AccessToken returns the stored access token, or "" if none is stored.
func (s *KeyringStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(accessTokenKey)
}

// RefreshToken returns the stored refresh token, or "" if none is stored.
func (s *KeyringStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(refreshTokenKey)
}

// SaveAccessToken persists the access token to the keyring.
func (s *KeyringStore) SaveAccessToken(ctx context.Context, tok string) error {
	if err := keyring.Set(s.service, accessTokenKey, tok); err != nil {
		return fmt.Errorf("saving access token to keyring: %w", err)
	}
	return nil
}

// SetRefreshToken persists the refresh token to the keyring.
func (s *KeyringStore) SetRefreshToken(tok string) error {
	if err := keyring.Set(s.service, refreshTokenKey, tok); err != nil {
		return fmt.Errorf("saving refresh token to keyring: %w", err)
	}
	return nil
}

// Clear removes both tokens. Missing entries are not an error, so Clear is
// safe to use as a sign-out hook.
func (s *KeyringStore) Clear() error {
	for _, key := range []string{accessTokenKey, refreshTokenKey} {
		if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clearing %s from keyring: %w", key, err)
		}
	}
	return nil
}

func (s *KeyringStore) get(key string) (string, error) {
	val, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s from keyring: %w", key, err)
	}
	return val, nil
}
