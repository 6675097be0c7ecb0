package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Principal kinds.
const (
	PrincipalAPIKey    = "api_key"
	PrincipalToken     = "token"
	PrincipalAnonymous = "anonymous"
)

// Principal represents the authenticated identity making the request.
// Email is set for tokens issued to a single user; such callers may only
// read their own requests and conversations.
type Principal struct {
	Type    string
	KeyID   string
	Subject string
	Email   string
}

// Authenticate returns an HTTP middleware that validates the request's
// authentication credentials. It supports two methods:
//
//  1. API key via the X-API-Key header (for backend services)
//  2. JWT Bearer token via the Authorization header (for the frontend)
//
// When the service has no credentials configured every request passes as
// an anonymous principal.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			switch {
			case !authSvc.Enabled():
				principal = &Principal{Type: PrincipalAnonymous}

			case r.Header.Get("X-API-Key") != "":
				p, err := authSvc.ValidateAPIKey(r.Context(), r.Header.Get("X-API-Key"))
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				principal = &Principal{Type: PrincipalAPIKey, KeyID: p.KeyID}

			case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
				token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				p, err := authSvc.ValidateJWT(r.Context(), token)
				if errors.Is(err, service.ErrTokenExpired) {
					writeAuthError(w, http.StatusUnauthorized, "Token expired")
					return
				}
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				principal = &Principal{Type: PrincipalToken, Subject: p.Subject, Email: p.Email}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
