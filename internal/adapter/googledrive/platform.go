package googledrive

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// PlatformConfig holds what the Google platform needs besides the client ID.
type PlatformConfig struct {
	ClientSecret string
	RedirectURL  string
	Consent      auth.Consent
	States       auth.StateIssuer
	// Base is the round tripper under the Drive and Sheets clients.
	Base http.RoundTripper
}

// Platform implements auth.Platform with the Google API client libraries.
// The libraries are linked in, so both readiness signals fire immediately.
type Platform struct {
	cfg   PlatformConfig
	ready *auth.Signal
}

func NewPlatform(cfg PlatformConfig) *Platform {
	if cfg.States == nil {
		cfg.States = auth.RandomStates{}
	}
	return &Platform{cfg: cfg, ready: auth.FiredSignal()}
}

func (p *Platform) TransportReady() <-chan struct{} { return p.ready.Done() }
func (p *Platform) IdentityReady() <-chan struct{}  { return p.ready.Done() }

func (p *Platform) LoadTransport(ctx context.Context) (adapter.Transport, error) {
	return NewSheetsTransport(ctx, p.cfg.Base)
}

// OAuthConfig builds the oauth2 config for clientID and a space-separated scope.
func (p *Platform) OAuthConfig(clientID, scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       strings.Fields(scope),
		Endpoint:     google.Endpoint,
	}
}

func (p *Platform) NewTokenClient(_ context.Context, clientID, scope string) (auth.TokenClient, error) {
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}
	if p.cfg.Consent == nil {
		return nil, errors.New("no consent flow configured")
	}
	return auth.NewOAuthClient(p.OAuthConfig(clientID, scope), p.cfg.Consent, p.cfg.States), nil
}
