package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jun/brickmap/internal/apierr"
	"github.com/rs/zerolog/log"
)

// Consent obtains an authorization code for authURL. The code must be
// returned together with state by the provider.
type Consent interface {
	Authorize(ctx context.Context, authURL, state string) (string, error)
}

// ProviderError is an error reported by the provider on the callback,
// e.g. access_denied when the user closes the consent screen.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// LoopbackConsent serves the redirect URI on a local listener and waits for
// the browser to deliver the code. Used by the local server.
type LoopbackConsent struct {
	// Addr is the listen address of the redirect URI, e.g. "127.0.0.1:8085".
	Addr         string
	CallbackPath string
	// Open hands authURL to the user. Nil only logs it.
	Open func(authURL string) error
}

type consentResult struct {
	code string
	err  error
}

func (c *LoopbackConsent) Authorize(ctx context.Context, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("unable to listen for oauth callback: %w", err)
	}

	results := make(chan consentResult, 1)
	deliver := func(r consentResult) {
		select {
		case results <- r:
		default:
		}
	}

	path := c.CallbackPath
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		if code := q.Get("error"); code != "" {
			deliver(consentResult{err: &ProviderError{Code: code, Description: q.Get("error_description")}})
			fmt.Fprintln(w, "Sign-in was cancelled. You can close this window.")
			return
		}
		deliver(consentResult{code: q.Get("code")})
		fmt.Fprintln(w, "Sign-in complete. You can close this window.")
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("oauth callback listener stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("url", authURL).Msg("Open this URL to grant access")
	if c.Open != nil {
		if err := c.Open(authURL); err != nil {
			log.Warn().Err(err).Msg("unable to open browser")
		}
	}

	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RedirectConsent is used when the browser talks to a stateless backend:
// the caller is sent to authURL and the code arrives later on the callback
// route, where it is passed to Manager.CompleteSignIn.
type RedirectConsent struct{}

func (RedirectConsent) Authorize(_ context.Context, authURL, _ string) (string, error) {
	return "", &apierr.Error{
		Kind:     apierr.KindAuthRequired,
		Op:       "sign in",
		Message:  "sign-in required",
		LoginURL: authURL,
	}
}
