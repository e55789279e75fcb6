package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when an access token is past its exp claim
var ErrTokenExpired = errors.New("access token expired")

// AccessClaims are the claims the provider puts into its access tokens
type AccessClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenVerifier reads access tokens. With a secret it verifies the HS256
// signature; without one it only decodes the claims, the same trust a client
// SDK gives to its stored session.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier creates a verifier; secret may be empty
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Verifies reports whether signatures are checked
func (v *TokenVerifier) Verifies() bool {
	return len(v.secret) > 0
}

// Parse returns the claims of token. An expired token yields the claims and ErrTokenExpired.
func (v *TokenVerifier) Parse(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if v.Verifies() {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(v.now),
		)
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return v.secret, nil
		})
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrTokenExpired
		}
		if err != nil {
			return nil, fmt.Errorf("invalid access token: %w", err)
		}
		return claims, nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("access token has no exp claim")
	}
	if !v.now().Before(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
