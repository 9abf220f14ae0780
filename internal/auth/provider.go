package auth

import (
	"github.com/jun/brickmap/internal/kvstore"
)

// StoreFactory returns the key/value store of a profile.
type StoreFactory func(profileID string) kvstore.Store

// Provider builds the Manager of a browser profile on that profile's own
// store. Caching is left to the caller.
type Provider struct {
	platform Platform
	newStore StoreFactory
	opts     Options
}

func NewProvider(platform Platform, newStore StoreFactory, opts Options) *Provider {
	return &Provider{
		platform: platform,
		newStore: newStore,
		opts:     opts,
	}
}

// Manager returns a new Manager for profileID.
func (p *Provider) Manager(profileID string) *Manager {
	return NewManager(p.platform, p.newStore(profileID), p.opts)
}
