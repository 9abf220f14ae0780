package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jun/brickmap/internal/apierr"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeConsent struct {
	code    string
	err     error
	authURL string
	state   string
}

func (f *fakeConsent) Authorize(_ context.Context, authURL, state string) (string, error) {
	f.authURL, f.state = authURL, state
	return f.code, f.err
}

// tokenServer grants access-1 for code-1. Like Google's endpoint it rejects a
// missing code_verifier, and one not matching the challenge returned by
// challenge.
func tokenServer(t *testing.T, challenge func() string) *httptest.Server {
	t.Helper()
	fail := func(w http.ResponseWriter, desc string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"` + desc + `"}`))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "code-1" {
			fail(w, "Bad Request")
			return
		}
		verifier := r.Form.Get("code_verifier")
		if verifier == "" {
			fail(w, "Missing code verifier.")
			return
		}
		if challenge != nil && oauth2.S256ChallengeFromVerifier(verifier) != challenge() {
			fail(w, "Invalid code verifier.")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":1800}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// challengeOf returns the code_challenge of a consent URL.
func challengeOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("code_challenge")
}

func testClient(srv *httptest.Server, consent Consent) *OAuthClient {
	return testClientWith(srv, consent, RandomStates{})
}

func testClientWith(srv *httptest.Server, consent Consent, states StateIssuer) *OAuthClient {
	return NewOAuthClient(&oauth2.Config{
		ClientID:    "client-1",
		RedirectURL: "http://127.0.0.1:8085/oauth2callback",
		Scopes:      []string{"https://www.googleapis.com/auth/spreadsheets"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: srv.URL + "/token",
		},
	}, consent, states)
}

func TestGenerateAuthURL(t *testing.T) {
	c := testClient(tokenServer(t, nil), &fakeConsent{})

	u, err := url.Parse(c.GenerateAuthURL("s1", PromptIfNeeded))
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "s1", q.Get("state"))
	require.Equal(t, "online", q.Get("access_type"))
	require.Equal(t, "true", q.Get("include_granted_scopes"))
	require.False(t, q.Has("prompt"))

	u, err = url.Parse(c.GenerateAuthURL("s1", PromptConsent))
	require.NoError(t, err)
	require.Equal(t, "consent", u.Query().Get("prompt"))
}

func TestRequestToken(t *testing.T) {
	consent := &fakeConsent{code: "code-1"}
	c := testClient(tokenServer(t, func() string { return challengeOf(t, consent.authURL) }), consent)

	resp, err := c.RequestToken(context.Background(), PromptIfNeeded)
	require.NoError(t, err)
	require.Equal(t, "access-1", resp.AccessToken)
	require.InDelta(t, 1800, resp.ExpiresIn, 2)

	u, err := url.Parse(consent.authURL)
	require.NoError(t, err)
	require.Equal(t, consent.state, u.Query().Get("state"))
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))
}

func TestRequestToken_ConsentFails(t *testing.T) {
	denied := &ProviderError{Code: "access_denied", Description: "The user denied access"}
	c := testClient(tokenServer(t, nil), &fakeConsent{err: denied})

	_, err := c.RequestToken(context.Background(), PromptIfNeeded)
	require.ErrorIs(t, err, denied)
	require.Equal(t, "access_denied: The user denied access", apierr.Message(err))
}

func TestRequestToken_Redirect(t *testing.T) {
	c := testClientWith(tokenServer(t, nil), RedirectConsent{}, NewJWTStates("secret"))

	_, err := c.RequestToken(WithProfile(context.Background(), "profile-1"), PromptIfNeeded)
	require.ErrorIs(t, err, apierr.ErrAuthRequired)

	var e *apierr.Error
	require.True(t, errors.As(err, &e))
	require.Contains(t, e.LoginURL, "https://accounts.example.com/auth")
}

func TestRedirectSignIn_SendsBoundVerifier(t *testing.T) {
	states := NewJWTStates("secret")
	var challenge string
	c := testClientWith(tokenServer(t, func() string { return challenge }), RedirectConsent{}, states)
	ctx := WithProfile(context.Background(), "profile-1")

	_, err := c.RequestToken(ctx, PromptIfNeeded)
	var e *apierr.Error
	require.True(t, errors.As(err, &e))
	u, err := url.Parse(e.LoginURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	challenge = u.Query().Get("code_challenge")
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	require.NotEmpty(t, challenge)

	resp, err := c.Exchange(context.Background(), "code-1", state)
	require.NoError(t, err)
	require.Equal(t, "access-1", resp.AccessToken)

	other, err := states.Issue(ctx)
	require.NoError(t, err)
	_, err = c.Exchange(context.Background(), "code-1", other)
	require.Error(t, err)
	require.Equal(t, "Invalid code verifier.", apierr.Message(err))

	_, err = c.Exchange(context.Background(), "code-1", "forged")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestExchange(t *testing.T) {
	states := NewJWTStates("secret")
	c := testClientWith(tokenServer(t, nil), &fakeConsent{}, states)
	state, err := states.Issue(WithProfile(context.Background(), "profile-1"))
	require.NoError(t, err)

	resp, err := c.Exchange(context.Background(), "code-1", state)
	require.NoError(t, err)
	require.Equal(t, "access-1", resp.AccessToken)

	_, err = c.Exchange(context.Background(), "wrong", state)
	require.Error(t, err)
	require.Equal(t, "Bad Request", apierr.Message(err))

	_, err = testClient(tokenServer(t, nil), &fakeConsent{}).Exchange(context.Background(), "code-1", state)
	require.ErrorIs(t, err, ErrNoVerifier)
}

func TestRevoke(t *testing.T) {
	var revoked string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		revoked = r.Form.Get("token")
		if revoked == "bad" {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
			return
		}
	}))
	defer srv.Close()

	c := testClient(tokenServer(t, nil), &fakeConsent{})
	c.revokeURL = srv.URL

	require.NoError(t, c.Revoke(context.Background(), "access-1"))
	require.Equal(t, "access-1", revoked)

	err := c.Revoke(context.Background(), "bad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestJWTStates(t *testing.T) {
	s := NewJWTStates("secret")
	ctx := WithProfile(context.Background(), "profile-1")

	state, err := s.Issue(ctx)
	require.NoError(t, err)

	profile, err := s.Verify(state)
	require.NoError(t, err)
	require.Equal(t, "profile-1", profile)

	_, err = NewJWTStates("other").Verify(state)
	require.ErrorIs(t, err, ErrInvalidState)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = s.Verify(state)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = s.Issue(context.Background())
	require.Error(t, err)
}

func TestJWTStates_Verifier(t *testing.T) {
	s := NewJWTStates("secret")
	ctx := WithProfile(context.Background(), "profile-1")
	first, err := s.Issue(ctx)
	require.NoError(t, err)
	second, err := s.Issue(ctx)
	require.NoError(t, err)

	v1, err := s.Verifier(first)
	require.NoError(t, err)
	require.Len(t, v1, 43)
	again, err := s.Verifier(first)
	require.NoError(t, err)
	require.Equal(t, v1, again)

	v2, err := s.Verifier(second)
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	_, err = NewJWTStates("other").Verifier(first)
	require.ErrorIs(t, err, ErrInvalidState)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestLoopbackConsent(t *testing.T) {
	addr := freeAddr(t)
	callback := func(query string) func(string) error {
		return func(string) error {
			go func() {
				resp, err := http.Get("http://" + addr + "/oauth2callback?" + query)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}
	}

	c := &LoopbackConsent{Addr: addr, CallbackPath: "/oauth2callback", Open: callback("state=s1&code=abc")}
	code, err := c.Authorize(context.Background(), "https://accounts.example.com/auth?state=s1", "s1")
	require.NoError(t, err)
	require.Equal(t, "abc", code)

	c.Open = callback("state=s1&error=access_denied")
	_, err = c.Authorize(context.Background(), "https://accounts.example.com/auth?state=s1", "s1")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "access_denied", pe.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Open = callback("state=forged&code=abc")
	_, err = c.Authorize(ctx, "https://accounts.example.com/auth?state=s1", "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
