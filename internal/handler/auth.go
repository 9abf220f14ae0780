package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/auth"
	"github.com/rs/zerolog/log"
)

// StateVerifier recovers the profile ID carried by an OAuth state.
type StateVerifier interface {
	Verify(state string) (string, error)
}

// AuthHandler handles sign-in, the OAuth callback, sign-out and status.
type AuthHandler struct {
	profiles    *Profiles
	states      StateVerifier
	jwtSecret   string
	frontendURL string
	devMode     bool
}

// NewAuthHandler creates a new AuthHandler. states may be nil when consent is
// completed on a loopback listener, in which case Callback is not served.
func NewAuthHandler(profiles *Profiles, states StateVerifier, jwtSecret, frontendURL string, devMode bool) *AuthHandler {
	return &AuthHandler{
		profiles:    profiles,
		states:      states,
		jwtSecret:   jwtSecret,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

// profile resolves the caller's profile, minting a new one (and its cookie)
// when the request carries none.
func (h *AuthHandler) profile(req events.APIGatewayProxyRequest) (*Profile, string, error) {
	id, err := GetProfileID(req, h.jwtSecret)
	if err == nil {
		return h.profiles.Get(id), "", nil
	}

	id = NewProfileID()
	cookie, err := ProfileCookie(id, h.jwtSecret, h.devMode)
	if err != nil {
		return nil, "", err
	}
	return h.profiles.Get(id), cookie, nil
}

// SignIn attaches a cached token or starts consent. In redirect mode the
// response is 401 with the consent URL in loginUrl.
func (h *AuthHandler) SignIn(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	prof, cookie, err := h.profile(req)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to issue profile"}, nil
	}

	ctx = auth.WithProfile(ctx, prof.ID)
	if err := prof.Manager.SignIn(ctx); err != nil {
		return withCookie(errorResponse("sign in", err), cookie), nil
	}
	return withCookie(jsonResponse(http.StatusOK, statusBody{Authenticated: true, State: prof.Manager.State().String()}), cookie), nil
}

// Callback completes a redirect consent and sends the browser back to the
// frontend.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.states == nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNotFound, Body: "Not Found"}, nil
	}

	q := req.QueryStringParameters
	if e := q["error"]; e != "" {
		err := &auth.ProviderError{Code: e, Description: q["error_description"]}
		return errorResponse("callback", apierr.Wrap(apierr.KindAuthRequired, "callback", err)), nil
	}

	profileID, err := h.states.Verify(q["state"])
	if err != nil {
		log.Warn().Err(err).Msg("rejected oauth callback")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid state"}, nil
	}

	prof := h.profiles.Get(profileID)
	if err := prof.Manager.CompleteSignIn(ctx, q["code"], q["state"]); err != nil {
		return errorResponse("callback", err), nil
	}

	cookie, err := ProfileCookie(profileID, h.jwtSecret, h.devMode)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to issue profile"}, nil
	}

	return withCookie(events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": fmt.Sprintf("%s/?signedIn=true", h.frontendURL),
		},
	}, cookie), nil
}

// SignOut revokes and clears the session of the caller's profile.
func (h *AuthHandler) SignOut(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, err := GetProfileID(req, h.jwtSecret)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
	}
	if err := h.profiles.Get(id).Manager.SignOut(ctx); err != nil {
		return errorResponse("sign out", err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}

type statusBody struct {
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state"`
}

// Status reports whether the caller's profile holds an unexpired token.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, err := GetProfileID(req, h.jwtSecret)
	if err != nil {
		return jsonResponse(http.StatusOK, statusBody{State: auth.StateUninitialized.String()}), nil
	}
	m := h.profiles.Get(id).Manager
	return jsonResponse(http.StatusOK, statusBody{
		Authenticated: m.IsAuthenticated(ctx),
		State:         m.State().String(),
	}), nil
}
