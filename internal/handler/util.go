package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/records"
	"github.com/rs/zerolog/log"
)

const (
	profileCookieName = "profile_token"
	profileTTL        = 365 * 24 * time.Hour
)

// ErrNoProfile is returned by GetProfileID when the request carries no profile token.
var ErrNoProfile = errors.New("no profile token found")

func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// GetProfileID extracts the browser profile ID from the Authorization header
// or the profile cookie.
func GetProfileID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	tokenString := ""
	if h := getHeader(req, "Authorization"); strings.HasPrefix(h, "Bearer ") {
		tokenString = strings.TrimPrefix(h, "Bearer ")
	}

	if tokenString == "" {
		for _, part := range strings.Split(getHeader(req, "Cookie"), ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, profileCookieName+"=") {
				tokenString = strings.TrimPrefix(part, profileCookieName+"=")
				break
			}
		}
	}

	if tokenString == "" {
		return "", ErrNoProfile
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return "", errors.New("invalid token claims")
}

// NewProfileID returns a random profile ID.
func NewProfileID() string {
	return uuid.New().String()
}

// ProfileCookie signs a profile token for profileID and formats its Set-Cookie value.
func ProfileCookie(profileID, jwtSecret string, devMode bool) (string, error) {
	claims := jwt.MapClaims{
		"sub": profileID,
		"exp": time.Now().Add(profileTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign profile token: %w", err)
	}

	// The API is reached cross-site in production.
	sameSite := "None"
	if devMode {
		sameSite = "Lax"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		profileCookieName, signed, int(profileTTL.Seconds()), sameSite), nil
}

func jsonResponse(status int, v interface{}) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("unable to encode response")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	LoginURL string `json:"loginUrl,omitempty"`
}

// errorResponse maps a failure to a status code and a JSON body carrying
// the normalized message.
func errorResponse(op string, err error) events.APIGatewayProxyResponse {
	body := errorBody{Error: apierr.Message(err)}
	status := http.StatusInternalServerError

	var e *apierr.Error
	if errors.As(err, &e) {
		body.Kind = e.Kind.String()
		body.LoginURL = e.LoginURL
	}

	switch {
	case errors.Is(err, records.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, apierr.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, apierr.ErrAuthInit):
		status = http.StatusServiceUnavailable
	case errors.Is(err, apierr.ErrResource), errors.Is(err, apierr.ErrIO):
		status = http.StatusBadGateway
	}

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("op", op).Str("kind", body.Kind).Int("status", status).Msg(body.Error)
	return jsonResponse(status, body)
}

func withCookie(resp events.APIGatewayProxyResponse, cookie string) events.APIGatewayProxyResponse {
	if cookie == "" {
		return resp
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string)
	}
	resp.MultiValueHeaders["Set-Cookie"] = append(resp.MultiValueHeaders["Set-Cookie"], cookie)
	return resp
}
