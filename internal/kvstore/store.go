// Package kvstore persists the small amount of per-profile state that must
// survive restarts: the access token, its expiry and the spreadsheet ID.
package kvstore

import (
	"context"
	"errors"
	"sync"
)

// Keys persisted for a profile.
const (
	KeyAccessToken = "gapi_access_token"
	KeyTokenExpiry = "gapi_token_expiry"
	KeyResourceID  = "spreadsheet_id"
)

// SessionKeys are cleared together on sign-out.
var SessionKeys = []string{KeyAccessToken, KeyTokenExpiry, KeyResourceID}

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a string-keyed store scoped to one profile.
// Writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, keys ...string) error
}

// MemoryStore implements Store with a map. Used in DEV_MODE and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Lookup returns the value for key, or "" if it is absent.
func Lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
