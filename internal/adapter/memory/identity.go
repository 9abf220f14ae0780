package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jun/brickmap/internal/auth"
)

// Identity implements auth.TokenClient without a provider. Every request
// is granted with a fresh demo token.
type Identity struct {
	// ExpiresIn is the lifetime of issued tokens in seconds.
	ExpiresIn int64

	mu       sync.Mutex
	issued   int
	requests int
	revoked  []string
	err      error
}

func NewIdentity() *Identity {
	return &Identity{ExpiresIn: 3600}
}

// Deny makes later requests fail with err, e.g. an *auth.ProviderError.
// A nil err grants again.
func (i *Identity) Deny(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

func (i *Identity) issue() (*auth.TokenResponse, error) {
	if i.err != nil {
		return nil, i.err
	}
	i.issued++
	return &auth.TokenResponse{
		AccessToken: fmt.Sprintf("demo-token-%d", i.issued),
		ExpiresIn:   i.ExpiresIn,
	}, nil
}

func (i *Identity) RequestToken(context.Context, auth.Prompt) (*auth.TokenResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.requests++
	return i.issue()
}

func (i *Identity) Exchange(_ context.Context, code, _ string) (*auth.TokenResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if code == "" {
		return nil, &auth.ProviderError{Code: "invalid_grant", Description: "Missing code"}
	}
	return i.issue()
}

func (i *Identity) Revoke(_ context.Context, token string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked = append(i.revoked, token)
	return nil
}

// Requests returns how many interactive token requests were made.
func (i *Identity) Requests() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.requests
}

// Revoked returns the revoked tokens in order.
func (i *Identity) Revoked() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.revoked...)
}
