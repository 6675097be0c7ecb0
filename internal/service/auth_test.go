package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService("test-secret-key-for-jwt", []string{"ihq_test_key_abcdef123456", ""})
}

func TestJWTRoundTrip(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, "frontend", "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.Subject != "frontend" {
		t.Errorf("Subject: got %q, want %q", principal.Subject, "frontend")
	}
	if principal.Email != "ana@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "ana@example.com")
	}
}

func TestJWTExpired(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, "frontend", "", -time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	_, err = auth.ValidateJWT(ctx, token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.ValidateJWT(ctx, "garbage.token.here"); err == nil {
		t.Fatal("expected error for invalid token")
	}

	// Signed with another secret.
	other := NewAuthService("another-secret", nil)
	token, err := other.IssueJWT(ctx, "x", "", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if _, err := auth.ValidateJWT(ctx, token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestJWTWrongIssuer(t *testing.T) {
	auth := newTestAuth(t)
	claims := jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-for-jwt"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ValidateJWT(context.Background(), token); err == nil {
		t.Fatal("expected error for foreign issuer")
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	principal, err := auth.ValidateAPIKey(ctx, "ihq_test_key_abcdef123456")
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if len(principal.KeyID) != 8 {
		t.Errorf("KeyID: got %q, want an 8 character hash prefix", principal.KeyID)
	}

	if _, err := auth.ValidateAPIKey(ctx, "wrong_key"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, ""); err != ErrInvalidCredentials {
		t.Errorf("empty configured keys must not match an empty header, got %v", err)
	}
}

func TestEnabled(t *testing.T) {
	if NewAuthService("", nil).Enabled() {
		t.Error("no credentials should leave auth disabled")
	}
	if !NewAuthService("", []string{"k"}).Enabled() {
		t.Error("an API key should enable auth")
	}
	if !NewAuthService("s", nil).Enabled() {
		t.Error("a JWT secret should enable auth")
	}

	if _, err := NewAuthService("", nil).IssueJWT(context.Background(), "x", "", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}
