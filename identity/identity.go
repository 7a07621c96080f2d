// Package identity extracts the stable subject and email the external
// identity provider asserts about a caller. Token issuance, refresh, and the
// surrounding auth-middleware stack are out of scope here (spec.md Non-goals
// exclude HTTP auth-token verification internals); this package only
// answers "who is this" for a token already presented to the HTTP surface.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrExpiredToken = errors.New("identity: expired token")
)

// Principal is what the engine needs from a verified token to lazily create
// or look up a User row.
type Principal struct {
	Subject string
	Email   string
}

// Verifier verifies an opaque bearer token and returns the principal it
// asserts.
type Verifier interface {
	Verify(token string) (Principal, error)
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens issued by the external identity
// provider, grounded on the teacher's TokenService.ValidateToken pattern.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier bound to a single shared secret. A
// provider that signs with RS256/JWKS would swap the keyfunc only; the
// Verifier interface keeps the rest of the engine agnostic to that choice.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return Principal{}, ErrExpiredToken
	}
	if c.Subject == "" {
		return Principal{}, ErrInvalidToken
	}

	return Principal{Subject: c.Subject, Email: c.Email}, nil
}
