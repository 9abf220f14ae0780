package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// GoogleRevokeURL is Google's token revocation endpoint.
const GoogleRevokeURL = "https://oauth2.googleapis.com/revoke"

// defaultExpiresIn is assumed when the token endpoint omits expires_in.
const defaultExpiresIn = 3600

// Prompt selects how the consent screen behaves.
type Prompt string

const (
	// PromptIfNeeded only shows the consent screen if consent was never granted.
	PromptIfNeeded Prompt = ""
	// PromptConsent always shows the consent screen.
	PromptConsent Prompt = "consent"
)

// TokenResponse is a granted access token.
type TokenResponse struct {
	AccessToken string
	ExpiresIn   int64 // seconds
}

// TokenClient requests and revokes access tokens.
type TokenClient interface {
	// RequestToken runs the interactive consent flow.
	RequestToken(ctx context.Context, prompt Prompt) (*TokenResponse, error)

	// Exchange completes a consent that finished out of band (redirect flow).
	// state is the one returned with code.
	Exchange(ctx context.Context, code, state string) (*TokenResponse, error)

	// Revoke invalidates token at the provider.
	Revoke(ctx context.Context, token string) error
}

// VerifierSource derives the PKCE code verifier of a state. A StateIssuer
// implementing it lets the code exchange run in another process than the
// consent request.
type VerifierSource interface {
	Verifier(state string) (string, error)
}

// ErrNoVerifier is returned by Exchange when the state issuer cannot derive
// a code verifier.
var ErrNoVerifier = errors.New("no code verifier for state")

// OAuthClient implements TokenClient with the authorization code flow.
type OAuthClient struct {
	oauthConfig *oauth2.Config
	consent     Consent
	states      StateIssuer
	httpClient  *http.Client
	revokeURL   string
}

// NewOAuthClient creates an OAuthClient. The oauthConfig is built by the
// caller (see googledrive.Platform).
func NewOAuthClient(oauthConfig *oauth2.Config, consent Consent, states StateIssuer) *OAuthClient {
	return &OAuthClient{
		oauthConfig: oauthConfig,
		consent:     consent,
		states:      states,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		revokeURL:   GoogleRevokeURL,
	}
}

// GenerateAuthURL returns the consent URL for state.
func (c *OAuthClient) GenerateAuthURL(state string, prompt Prompt, opts ...oauth2.AuthCodeOption) string {
	opts = append(opts,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	if prompt != PromptIfNeeded {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", string(prompt)))
	}
	return c.oauthConfig.AuthCodeURL(state, opts...)
}

// RequestToken asks the user for consent and exchanges the returned code.
func (c *OAuthClient) RequestToken(ctx context.Context, prompt Prompt) (*TokenResponse, error) {
	state, err := c.states.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	if src, ok := c.states.(VerifierSource); ok {
		if verifier, err = src.Verifier(state); err != nil {
			return nil, fmt.Errorf("derive verifier: %w", err)
		}
	}
	authURL := c.GenerateAuthURL(state, prompt, oauth2.S256ChallengeOption(verifier))

	code, err := c.consent.Authorize(ctx, authURL, state)
	if err != nil {
		return nil, err
	}

	tok, err := c.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return toResponse(tok), nil
}

// Exchange exchanges a code obtained by a redirect to the callback endpoint.
func (c *OAuthClient) Exchange(ctx context.Context, code, state string) (*TokenResponse, error) {
	src, ok := c.states.(VerifierSource)
	if !ok {
		return nil, ErrNoVerifier
	}
	verifier, err := src.Verifier(state)
	if err != nil {
		return nil, fmt.Errorf("derive verifier: %w", err)
	}

	tok, err := c.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return toResponse(tok), nil
}

// Revoke calls the provider's revocation endpoint.
func (c *OAuthClient) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("revoke token: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

func toResponse(tok *oauth2.Token) *TokenResponse {
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return &TokenResponse{AccessToken: tok.AccessToken, ExpiresIn: expiresIn}
}
