package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/kvstore"
	"github.com/jun/brickmap/internal/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State of a Manager's bootstrap.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

const initKey = "initialize"

// Options configures a Manager.
type Options struct {
	ClientID    string
	Scope       string
	WaitTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager owns the bearer credential of one profile: it bootstraps the
// transport and identity clients, obtains and persists the access token and
// attaches it to the transport.
type Manager struct {
	opts     Options
	platform Platform
	store    kvstore.Store

	group singleflight.Group

	mu        sync.RWMutex
	state     State
	transport adapter.Transport
	identity  TokenClient
}

// NewManager creates a Manager persisting its session in store.
func NewManager(platform Platform, store kvstore.Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	return &Manager{opts: opts, platform: platform, store: store}
}

// Store returns the store the session is persisted in.
func (m *Manager) Store() kvstore.Store {
	return m.store
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) clients() (adapter.Transport, TokenClient) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transport, m.identity
}

func (m *Manager) nowMillis() int64 {
	return m.opts.Now().UnixMilli()
}

// Initialize bootstraps both clients. Concurrent callers share one attempt;
// after a failure the next call starts a new one.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.State() == StateReady {
		return nil
	}

	ch := m.group.DoChan(initKey, func() (interface{}, error) {
		if m.State() == StateReady {
			return nil, nil
		}
		// Detached so one caller giving up does not fail the others.
		return nil, m.bootstrap(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return apierr.Wrap(apierr.KindAuthInit, "initialize", ctx.Err())
	}
}

func (m *Manager) bootstrap(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInitializing
	m.mu.Unlock()

	var (
		transport adapter.Transport
		identity  TokenClient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := Wait(gctx, m.platform.TransportReady(), m.opts.WaitTimeout); err != nil {
			return fmt.Errorf("transport client: %w", err)
		}
		t, err := m.platform.LoadTransport(ctx)
		if err != nil {
			return fmt.Errorf("unable to load transport: %w", err)
		}
		transport = t
		return nil
	})
	g.Go(func() error {
		if err := Wait(gctx, m.platform.IdentityReady(), m.opts.WaitTimeout); err != nil {
			return fmt.Errorf("identity client: %w", err)
		}
		c, err := m.platform.NewTokenClient(ctx, m.opts.ClientID, m.opts.Scope)
		if err != nil {
			return fmt.Errorf("unable to create token client: %w", err)
		}
		identity = c
		return nil
	})
	err := g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// Back to uninitialized so the next call retries.
		m.state = StateUninitialized
		log.Error().Err(err).Msg("credential manager bootstrap failed")
		return apierr.Wrap(apierr.KindAuthInit, "initialize", err)
	}
	m.transport, m.identity, m.state = transport, identity, StateReady
	return nil
}

func (m *Manager) loadSession(ctx context.Context) (model.Session, error) {
	token, err := kvstore.Lookup(ctx, m.store, kvstore.KeyAccessToken)
	if err != nil {
		return model.Session{}, err
	}
	expiry, err := kvstore.Lookup(ctx, m.store, kvstore.KeyTokenExpiry)
	if err != nil {
		return model.Session{}, err
	}
	// An unparseable expiry leaves ExpiresAt at 0, which is never valid.
	expiresAt, _ := strconv.ParseInt(expiry, 10, 64)
	return model.Session{AccessToken: token, ExpiresAt: expiresAt}, nil
}

func (m *Manager) saveSession(ctx context.Context, s model.Session) error {
	if err := m.store.Set(ctx, kvstore.KeyAccessToken, s.AccessToken); err != nil {
		return err
	}
	return m.store.Set(ctx, kvstore.KeyTokenExpiry, strconv.FormatInt(s.ExpiresAt, 10))
}

// cachedToken returns the persisted token if it has not expired.
func (m *Manager) cachedToken(ctx context.Context) (string, bool) {
	s, err := m.loadSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("unable to read session")
		return "", false
	}
	if !s.Valid(m.nowMillis()) {
		return "", false
	}
	return s.AccessToken, true
}

// SignIn attaches a valid cached token, or asks the identity client for a new
// one without forcing the consent screen.
func (m *Manager) SignIn(ctx context.Context) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}
	transport, identity := m.clients()

	if token, ok := m.cachedToken(ctx); ok {
		transport.SetToken(token)
		return nil
	}

	resp, err := identity.RequestToken(ctx, PromptIfNeeded)
	if err != nil {
		return apierr.Wrap(apierr.KindAuthRequired, "sign in", err)
	}
	return m.accept(ctx, resp)
}

// CompleteSignIn finishes a consent that was completed through the redirect
// callback. state is the verified state delivered with code.
func (m *Manager) CompleteSignIn(ctx context.Context, code, state string) error {
	if code == "" {
		return apierr.New(apierr.KindAuthRequired, "sign in", "missing authorization code")
	}
	if err := m.Initialize(ctx); err != nil {
		return err
	}
	_, identity := m.clients()

	resp, err := identity.Exchange(ctx, code, state)
	if err != nil {
		return apierr.Wrap(apierr.KindAuthRequired, "sign in", err)
	}
	return m.accept(ctx, resp)
}

func (m *Manager) accept(ctx context.Context, resp *TokenResponse) error {
	if resp == nil || resp.AccessToken == "" {
		return apierr.New(apierr.KindAuthRequired, "sign in", "no access token granted")
	}
	s := model.Session{
		AccessToken: resp.AccessToken,
		ExpiresAt:   m.nowMillis() + resp.ExpiresIn*1000,
	}
	if err := m.saveSession(ctx, s); err != nil {
		return fmt.Errorf("unable to persist session: %w", err)
	}
	transport, _ := m.clients()
	transport.SetToken(s.AccessToken)
	return nil
}

// SignOut revokes the attached token (best effort), detaches it and clears
// the session together with the resource handle.
func (m *Manager) SignOut(ctx context.Context) error {
	transport, identity := m.clients()
	if transport != nil {
		if token := transport.Token(); token != "" {
			if identity != nil {
				if err := identity.Revoke(ctx, token); err != nil {
					log.Warn().Str("error", apierr.Message(err)).Msg("token revocation failed")
				}
			}
			transport.ClearToken()
		}
	}

	if err := m.store.Clear(ctx, kvstore.SessionKeys...); err != nil {
		return fmt.Errorf("unable to clear session: %w", err)
	}
	return nil
}

// GetValidToken returns the cached token while unexpired, otherwise signs in
// again. There is no refresh-token exchange.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	if token, ok := m.cachedToken(ctx); ok {
		return token, nil
	}
	if err := m.SignIn(ctx); err != nil {
		return "", apierr.Wrap(apierr.KindAuthRequired, "get token", err)
	}
	transport, _ := m.clients()
	return transport.Token(), nil
}

// IsAuthenticated reports whether a persisted, unexpired token exists.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	_, ok := m.cachedToken(ctx)
	return ok
}

// Authorized returns the transport with a valid token attached.
func (m *Manager) Authorized(ctx context.Context) (adapter.Transport, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	token, err := m.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	transport, _ := m.clients()
	transport.SetToken(token)
	return transport, nil
}

// ClearResource forgets the resource handle and keeps the session.
func (m *Manager) ClearResource(ctx context.Context) error {
	if err := m.store.Clear(ctx, kvstore.KeyResourceID); err != nil {
		return fmt.Errorf("unable to clear resource handle: %w", err)
	}
	return nil
}
