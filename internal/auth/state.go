package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateIssuer produces the opaque state sent with a consent request.
type StateIssuer interface {
	Issue(ctx context.Context) (string, error)
}

type profileKey struct{}

// WithProfile stores the browser profile ID in ctx.
func WithProfile(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileKey{}, profileID)
}

// ProfileFrom returns the profile ID stored by WithProfile.
func ProfileFrom(ctx context.Context) string {
	id, _ := ctx.Value(profileKey{}).(string)
	return id
}

// RandomStates issues random UUID states. Enough for the loopback flow where
// the issuing process also receives the callback.
type RandomStates struct{}

func (RandomStates) Issue(context.Context) (string, error) {
	return uuid.NewString(), nil
}

// ErrInvalidState is returned by JWTStates.Verify.
var ErrInvalidState = errors.New("invalid oauth state")

const stateTTL = 10 * time.Minute

// JWTStates issues HS256-signed states carrying the profile ID, so a
// stateless callback can tell which profile started the consent.
type JWTStates struct {
	secret []byte
	now    func() time.Time
}

func NewJWTStates(secret string) *JWTStates {
	return &JWTStates{secret: []byte(secret), now: time.Now}
}

func (s *JWTStates) Issue(ctx context.Context) (string, error) {
	profileID := ProfileFrom(ctx)
	if profileID == "" {
		return "", errors.New("no profile in context")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   profileID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks state and returns the profile ID it was issued for.
func (s *JWTStates) Verify(state string) (string, error) {
	claims, err := s.parse(state)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Verifier returns the PKCE code verifier bound to state. It is derived from
// the state's ID with the signing secret, so the process handling the
// callback recomputes it without storing anything.
func (s *JWTStates) Verifier(state string) (string, error) {
	claims, err := s.parse(state)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("pkce:" + claims.ID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (s *JWTStates) parse(state string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidState
	}
	return claims, nil
}
