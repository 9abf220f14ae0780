package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/auth"
)

// Platform implements auth.Platform in memory. Each LoadTransport call
// returns a new Transport, so profiles do not share data.
type Platform struct {
	Identity *Identity

	transportReady *auth.Signal
	identityReady  *auth.Signal

	mu         sync.Mutex
	loads      int
	loadErr    error
	transports []*Transport
}

// NewPlatform returns a Platform whose libraries are ready.
func NewPlatform() *Platform {
	p := NewPendingPlatform()
	p.FireTransport()
	p.FireIdentity()
	return p
}

// NewPendingPlatform returns a Platform whose libraries become ready only
// when FireTransport and FireIdentity are called.
func NewPendingPlatform() *Platform {
	return &Platform{
		Identity:       NewIdentity(),
		transportReady: auth.NewSignal(),
		identityReady:  auth.NewSignal(),
	}
}

func (p *Platform) FireTransport() { p.transportReady.Fire() }
func (p *Platform) FireIdentity()  { p.identityReady.Fire() }

func (p *Platform) TransportReady() <-chan struct{} { return p.transportReady.Done() }
func (p *Platform) IdentityReady() <-chan struct{}  { return p.identityReady.Done() }

// FailLoads makes LoadTransport fail with err until cleared with nil.
func (p *Platform) FailLoads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr = err
}

func (p *Platform) LoadTransport(context.Context) (adapter.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	t := NewTransport()
	p.transports = append(p.transports, t)
	return t, nil
}

func (p *Platform) NewTokenClient(_ context.Context, clientID, _ string) (auth.TokenClient, error) {
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}
	return p.Identity, nil
}

// Loads returns how many times LoadTransport was called.
func (p *Platform) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// Transports returns every Transport handed out so far.
func (p *Platform) Transports() []*Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Transport(nil), p.transports...)
}
