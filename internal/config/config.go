// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDriveFile    = "https://www.googleapis.com/auth/drive.file"

	DefaultScope              = ScopeSpreadsheets + " " + ScopeDriveFile
	DefaultResourceName       = "BrickMap Data"
	DefaultLibraryWaitTimeout = 10 * time.Second
)

// Consent modes.
const (
	ConsentLoopback = "loopback"
	ConsentRedirect = "redirect"
)

// Config is the service configuration.
type Config struct {
	DevMode  bool
	AppName  string
	Port     string
	LogLevel string

	ClientID           string
	Scope              string
	ResourceName       string
	LibraryWaitTimeout time.Duration

	ConsentMode  string
	RedirectURL  string
	LoopbackAddr string
	FrontendURL  string

	ProfilesTable string
	KMSKeyID      string

	ClientSecretParam     string
	JWTSecretParam        string
	APIGatewaySecretParam string
}

// Load reads the configuration. Unset variables take their defaults.
func Load() Config {
	dev := GetEnv("DEV_MODE", "") == "true"

	c := Config{
		DevMode:  dev,
		AppName:  GetEnv("APP_NAME", "BrickMap"),
		Port:     GetEnv("PORT", "8080"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),

		ClientID:           GetEnv("GOOGLE_CLIENT_ID", ""),
		Scope:              GetEnv("GOOGLE_SCOPE", DefaultScope),
		ResourceName:       GetEnv("RESOURCE_NAME", DefaultResourceName),
		LibraryWaitTimeout: getMillis("LIBRARY_WAIT_TIMEOUT_MS", DefaultLibraryWaitTimeout),

		ConsentMode:  GetEnv("CONSENT_MODE", ConsentRedirect),
		LoopbackAddr: GetEnv("LOOPBACK_ADDR", "127.0.0.1:8085"),
		FrontendURL:  GetEnv("FRONTEND_URL", "http://localhost:3000"),

		ProfilesTable: GetEnv("PROFILES_TABLE", "BrickMapProfiles"),
		KMSKeyID:      GetEnv("KMS_KEY_ID", "alias/brickmap-session-key"),

		ClientSecretParam:     GetEnv("GOOGLE_CLIENT_SECRET_PARAM", "/brickmap/google-client-secret"),
		JWTSecretParam:        GetEnv("JWT_SECRET_PARAM", "/brickmap/jwt-secret"),
		APIGatewaySecretParam: GetEnv("API_GATEWAY_SECRET_PARAM", "/brickmap/api-gateway-secret"),
	}
	if dev && c.ClientID == "" {
		c.ClientID = "dev-client"
	}

	defaultRedirect := c.FrontendURL + "/api/auth/callback"
	if c.ConsentMode == ConsentLoopback {
		defaultRedirect = "http://" + c.LoopbackAddr + "/oauth2callback"
	}
	c.RedirectURL = GetEnv("GOOGLE_REDIRECT_URL", defaultRedirect)
	return c
}

// Validate checks the settings the credential manager cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	scopes := strings.Fields(c.Scope)
	for _, required := range []string{ScopeSpreadsheets, ScopeDriveFile} {
		if !contains(scopes, required) {
			errs = append(errs, fmt.Errorf("scope must include %s", required))
		}
	}
	if c.ConsentMode != ConsentLoopback && c.ConsentMode != ConsentRedirect {
		errs = append(errs, fmt.Errorf("unknown consent mode %q", c.ConsentMode))
	}
	if c.LibraryWaitTimeout <= 0 {
		errs = append(errs, errors.New("library wait timeout must be positive"))
	}
	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetEnv returns the value of envVar, or defaultValue if it is unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getMillis(envVar string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(envVar)
	if v == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
