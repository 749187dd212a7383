// Package token provides credential stores and helpers for the pipeline's
// TokenAccessor and RefreshFunc capabilities: an in-memory store, a system
// keyring store, an unverified JWT expiry peek, and an OAuth2 refresh
// adapter.
package token

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory TokenAccessor. Safe for concurrent use.
// Useful for tests and for processes that hold credentials only for their
// own lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemoryStore creates a store seeded with the given tokens; either may
// be empty.
func NewMemoryStore(accessToken, refreshToken string) *MemoryStore {
	return &MemoryStore{access: accessToken, refresh: refreshToken}
}

// AccessToken returns the current access token.
func (s *MemoryStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, nil
}

// RefreshToken returns the current refresh token.
func (s *MemoryStore) RefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, nil
}

// SaveAccessToken replaces the access token.
func (s *MemoryStore) SaveAccessToken(ctx context.Context, tok string) error {
	s.mu.Lock()
	s.access = tok
	s.mu.Unlock()
	return nil
}

// SetRefreshToken replaces the refresh token.
func (s *MemoryStore) SetRefreshToken(tok string) {
	s.mu.Lock()
	s.refresh = tok
	s.mu.Unlock()
}
