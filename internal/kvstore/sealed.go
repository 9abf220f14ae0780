package kvstore

import (
	"context"
	"fmt"

	"github.com/jun/brickmap/internal/crypto"
)

// Sealed encrypts the values of selected keys before they reach the
// underlying store.
type Sealed struct {
	inner     Store
	encryptor crypto.Encryptor
	sealed    map[string]bool
}

// NewSealed wraps inner. Values of keys are encrypted with enc.
func NewSealed(inner Store, enc crypto.Encryptor, keys ...string) *Sealed {
	s := &Sealed{inner: inner, encryptor: enc, sealed: make(map[string]bool, len(keys))}
	for _, k := range keys {
		s.sealed[k] = true
	}
	return s
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	v, err := s.inner.Get(ctx, key)
	if err != nil || !s.sealed[key] {
		return v, err
	}
	plain, err := s.encryptor.Decrypt(ctx, v)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %q: %w", key, err)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	if s.sealed[key] {
		enc, err := s.encryptor.Encrypt(ctx, value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %q: %w", key, err)
		}
		value = enc
	}
	return s.inner.Set(ctx, key, value)
}

func (s *Sealed) Clear(ctx context.Context, keys ...string) error {
	return s.inner.Clear(ctx, keys...)
}
