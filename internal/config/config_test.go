package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DEV_MODE", "GOOGLE_CLIENT_ID", "GOOGLE_SCOPE", "CONSENT_MODE", "GOOGLE_REDIRECT_URL", "LIBRARY_WAIT_TIMEOUT_MS", "FRONTEND_URL", "RESOURCE_NAME"} {
		t.Setenv(k, "")
	}

	c := Load()
	require.False(t, c.DevMode)
	require.Equal(t, DefaultScope, c.Scope)
	require.Equal(t, DefaultResourceName, c.ResourceName)
	require.Equal(t, 10*time.Second, c.LibraryWaitTimeout)
	require.Equal(t, ConsentRedirect, c.ConsentMode)
	require.Equal(t, "http://localhost:3000/api/auth/callback", c.RedirectURL)
	require.Equal(t, "/brickmap/jwt-secret", c.JWTSecretParam)

	require.ErrorContains(t, c.Validate(), "GOOGLE_CLIENT_ID is required")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("CONSENT_MODE", ConsentLoopback)
	t.Setenv("LOOPBACK_ADDR", "127.0.0.1:9999")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("LIBRARY_WAIT_TIMEOUT_MS", "250")

	c := Load()
	require.True(t, c.DevMode)
	require.Equal(t, "dev-client", c.ClientID)
	require.Equal(t, "http://127.0.0.1:9999/oauth2callback", c.RedirectURL)
	require.Equal(t, 250*time.Millisecond, c.LibraryWaitTimeout)
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	valid := Config{ClientID: "c", Scope: DefaultScope, ConsentMode: ConsentRedirect, LibraryWaitTimeout: time.Second}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing spreadsheets scope", func(c *Config) { c.Scope = ScopeDriveFile }, ScopeSpreadsheets},
		{"missing drive.file scope", func(c *Config) { c.Scope = ScopeSpreadsheets }, ScopeDriveFile},
		{"substring is not a scope", func(c *Config) { c.Scope = ScopeSpreadsheets + ".readonly " + ScopeDriveFile }, ScopeSpreadsheets},
		{"bad consent mode", func(c *Config) { c.ConsentMode = "popup" }, "popup"},
		{"zero timeout", func(c *Config) { c.LibraryWaitTimeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("BRICKMAP_TEST_VAR", "")
	require.Equal(t, "fallback", GetEnv("BRICKMAP_TEST_VAR", "fallback"))
	t.Setenv("BRICKMAP_TEST_VAR", "set")
	require.Equal(t, "set", GetEnv("BRICKMAP_TEST_VAR", "fallback"))
}
