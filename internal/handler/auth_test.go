package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jun/brickmap/internal/auth"
	"github.com/jun/brickmap/internal/handler"
)

func TestAuthHandler_SignInIssuesProfile(t *testing.T) {
	e := newEnv()
	h := handler.NewAuthHandler(e.profiles, nil, testJWTSecret, "http://localhost:3000", true)
	ctx := context.Background()

	resp, err := h.SignIn(ctx, makeRequest("POST", "/auth/signin", "", ""))
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	cookie := setCookie(resp)
	if !strings.HasPrefix(cookie, "profile_token=") {
		t.Fatalf("Expected a profile cookie, got %q", cookie)
	}

	req := makeRequest("GET", "/auth/status", "", "")
	req.Headers["Cookie"] = cookie
	resp, _ = h.Status(ctx, req)

	var status struct {
		Authenticated bool   `json:"authenticated"`
		State         string `json:"state"`
	}
	decode(t, resp, &status)
	if !status.Authenticated || status.State != "ready" {
		t.Errorf("Expected authenticated ready profile, got %+v", status)
	}
}

func TestAuthHandler_SignInReusesProfile(t *testing.T) {
	e := newEnv()
	h := handler.NewAuthHandler(e.profiles, nil, testJWTSecret, "http://localhost:3000", true)

	resp, _ := h.SignIn(context.Background(), makeRequest("POST", "/auth/signin", "", testProfileID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if cookie := setCookie(resp); cookie != "" {
		t.Errorf("Expected no new cookie for a known profile, got %q", cookie)
	}
	if !e.profiles.Get(testProfileID).Manager.IsAuthenticated(context.Background()) {
		t.Error("Expected the known profile to be signed in")
	}
}

func TestAuthHandler_SignInDenied(t *testing.T) {
	e := newEnv()
	e.platform.Identity.Deny(&auth.ProviderError{Code: "access_denied", Description: "User cancelled"})
	h := handler.NewAuthHandler(e.profiles, nil, testJWTSecret, "http://localhost:3000", true)

	resp, _ := h.SignIn(context.Background(), makeRequest("POST", "/auth/signin", "", testProfileID))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	decode(t, resp, &body)
	if body.Kind != "auth_required" || !strings.Contains(body.Error, "User cancelled") {
		t.Errorf("Unexpected error body: %+v", body)
	}
}

func TestAuthHandler_Callback(t *testing.T) {
	e := newEnv()
	states := auth.NewJWTStates(testJWTSecret)
	h := handler.NewAuthHandler(e.profiles, states, testJWTSecret, "http://localhost:3000", false)

	state, err := states.Issue(auth.WithProfile(context.Background(), testProfileID))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := makeRequest("GET", "/auth/callback", "", "")
	req.QueryStringParameters = map[string]string{"code": "auth-code", "state": state}
	resp, _ := h.Callback(context.Background(), req)

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", resp.StatusCode, resp.Body)
	}
	if loc := resp.Headers["Location"]; !strings.HasPrefix(loc, "http://localhost:3000/") {
		t.Errorf("Unexpected redirect %q", loc)
	}
	if !strings.Contains(resp.MultiValueHeaders["Set-Cookie"][0], "SameSite=None") {
		t.Errorf("Expected a cross-site cookie, got %v", resp.MultiValueHeaders["Set-Cookie"])
	}
	if !e.profiles.Get(testProfileID).Manager.IsAuthenticated(context.Background()) {
		t.Error("Expected the profile named by the state to be signed in")
	}
}

func TestAuthHandler_CallbackRejects(t *testing.T) {
	e := newEnv()
	states := auth.NewJWTStates(testJWTSecret)
	h := handler.NewAuthHandler(e.profiles, states, testJWTSecret, "http://localhost:3000", false)
	ctx := context.Background()

	forged := makeRequest("GET", "/auth/callback", "", "")
	forged.QueryStringParameters = map[string]string{"code": "auth-code", "state": "forged"}
	if resp, _ := h.Callback(ctx, forged); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a forged state, got %d", resp.StatusCode)
	}

	denied := makeRequest("GET", "/auth/callback", "", "")
	denied.QueryStringParameters = map[string]string{"error": "access_denied"}
	if resp, _ := h.Callback(ctx, denied); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a denied consent, got %d", resp.StatusCode)
	}

	loopback := handler.NewAuthHandler(e.profiles, nil, testJWTSecret, "http://localhost:3000", false)
	if resp, _ := loopback.Callback(ctx, forged); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 without a state verifier, got %d", resp.StatusCode)
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	e := newEnv()
	h := handler.NewAuthHandler(e.profiles, nil, testJWTSecret, "http://localhost:3000", true)
	ctx := context.Background()

	h.SignIn(ctx, makeRequest("POST", "/auth/signin", "", testProfileID))

	resp, _ := h.SignOut(ctx, makeRequest("POST", "/auth/signout", "", testProfileID))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	if e.profiles.Get(testProfileID).Manager.IsAuthenticated(ctx) {
		t.Error("Expected the session to be cleared")
	}
	if revoked := e.platform.Identity.Revoked(); len(revoked) != 1 {
		t.Errorf("Expected one revoked token, got %v", revoked)
	}

	if resp, _ := h.SignOut(ctx, makeRequest("POST", "/auth/signout", "", "")); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 without a profile, got %d", resp.StatusCode)
	}
}

func TestAuthHandler_StatusWithoutProfile(t *testing.T) {
	h := handler.NewAuthHandler(newEnv().profiles, nil, testJWTSecret, "http://localhost:3000", true)

	resp, _ := h.Status(context.Background(), makeRequest("GET", "/auth/status", "", ""))
	var status struct {
		Authenticated bool   `json:"authenticated"`
		State         string `json:"state"`
	}
	decode(t, resp, &status)
	if status.Authenticated || status.State != "uninitialized" {
		t.Errorf("Unexpected status %+v", status)
	}
}
