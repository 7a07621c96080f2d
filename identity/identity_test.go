package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, c claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	token := sign(t, "s3cret", claims{
		Email: "a@b.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Subject != "user-123" || p.Email != "a@b.com" {
		t.Errorf("principal = %+v, want subject=user-123 email=a@b.com", p)
	}
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	token := sign(t, "different-secret", claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTVerifierRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	token := sign(t, "s3cret", claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := v.Verify(token); err == nil {
		t.Error("expected an error for an expired token")
	}
}

func TestJWTVerifierRejectsMissingSubject(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	token := sign(t, "s3cret", claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTVerifierRejectsUnsignedAlgorithm(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
