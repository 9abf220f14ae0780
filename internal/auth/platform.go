package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jun/brickmap/internal/adapter"
)

// DefaultWaitTimeout bounds how long Initialize waits for each client library.
const DefaultWaitTimeout = 10 * time.Second

// ErrNotReady is returned when a readiness signal does not fire in time.
var ErrNotReady = errors.New("client library not available")

// Platform supplies the transport and identity clients a Manager bootstraps.
// Each readiness channel is closed once the corresponding library can be used.
type Platform interface {
	TransportReady() <-chan struct{}
	IdentityReady() <-chan struct{}

	// LoadTransport builds the sub-clients used for spreadsheet calls.
	LoadTransport(ctx context.Context) (adapter.Transport, error)

	// NewTokenClient builds a token-request client bound to clientID and scope.
	NewTokenClient(ctx context.Context, clientID, scope string) (TokenClient, error)
}

// Signal is a readiness flag that resolves once.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// FiredSignal returns a Signal that is already resolved.
func FiredSignal() *Signal {
	s := NewSignal()
	s.Fire()
	return s
}

// Fire resolves the signal. Later calls are no-ops.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Wait blocks until done is closed, timeout elapses or ctx ends.
func Wait(ctx context.Context, done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}
