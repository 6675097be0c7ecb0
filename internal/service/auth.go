package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrNoSecret           = errors.New("jwt secret not configured")
)

const issuer = "insightshq"

// APIKeyPrincipal identifies a caller that authenticated with a static key.
// KeyID is a short prefix of the key hash, safe to log.
type APIKeyPrincipal struct {
	KeyID string
}

type JWTPrincipal struct {
	Subject string
	Email   string
}

// AuthService validates status API credentials: static API keys from the
// configuration and HS256 bearer tokens signed with the shared secret.
type AuthService struct {
	keyHashes [][]byte
	jwtSecret []byte
}

// NewAuthService hashes the configured keys once. Raw keys are not kept.
func NewAuthService(jwtSecret string, apiKeys []string) *AuthService {
	s := &AuthService{jwtSecret: []byte(jwtSecret)}
	for _, k := range apiKeys {
		if k == "" {
			continue
		}
		h := sha256.Sum256([]byte(k))
		s.keyHashes = append(s.keyHashes, h[:])
	}
	return s
}

// Enabled reports whether any credential is configured. With none, the API
// runs open, which is only meant for local development.
func (s *AuthService) Enabled() bool {
	return len(s.keyHashes) > 0 || len(s.jwtSecret) > 0
}

// ValidateAPIKey checks the provided raw API key against the configured key
// hashes in constant time.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKeyPrincipal, error) {
	h := sha256.Sum256([]byte(rawKey))
	for _, want := range s.keyHashes {
		if subtle.ConstantTimeCompare(h[:], want) == 1 {
			return &APIKeyPrincipal{KeyID: hashKey(rawKey)[:8]}, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// ValidateJWT verifies a bearer token and returns the identity it carries.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrInvalidCredentials
	}
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{
		Subject: claims.Subject,
		Email:   claims.Email,
	}, nil
}

// IssueJWT creates a signed token for subject. The email claim lets request
// listings default to the caller's own requests.
func (s *AuthService) IssueJWT(ctx context.Context, subject, email string, ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwtClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func hashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
