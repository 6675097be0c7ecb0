package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/insightshq/nl2sql-processor/internal/service"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	respID := rr.Header().Get("X-Request-ID")
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDClientValues(t *testing.T) {
	tests := []struct {
		name string
		id   string
		keep bool
	}{
		{"short printable id is kept", "my-custom-trace-id-123", true},
		{"id with spaces is replaced", "has space", false},
		{"overlong id is replaced", strings.Repeat("a", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("X-Request-ID", tt.id)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			got := rr.Header().Get("X-Request-ID")
			if tt.keep && got != tt.id {
				t.Errorf("expected %q to be kept, got %q", tt.id, got)
			}
			if !tt.keep && got == tt.id {
				t.Errorf("expected %q to be replaced", tt.id)
			}
		})
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Authenticate middleware tests
// ---------------------------------------------------------------------------

func principalEcho(t *testing.T, got **Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	auth := service.NewAuthService("secret", []string{"ihq_key"})
	token, err := auth.IssueJWT(context.Background(), "frontend", "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	expired, err := auth.IssueJWT(context.Background(), "frontend", "", -time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	tests := []struct {
		name     string
		header   string
		value    string
		status   int
		wantType string
		wantBody string
	}{
		{"api key", "X-API-Key", "ihq_key", http.StatusOK, PrincipalAPIKey, ""},
		{"bad api key", "X-API-Key", "nope", http.StatusUnauthorized, "", "Invalid API key"},
		{"bearer token", "Authorization", "Bearer " + token, http.StatusOK, PrincipalToken, ""},
		{"bad token", "Authorization", "Bearer junk", http.StatusUnauthorized, "", "Invalid token"},
		{"expired token", "Authorization", "Bearer " + expired, http.StatusUnauthorized, "", "Token expired"},
		{"no credentials", "", "", http.StatusUnauthorized, "", "Authentication required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Principal
			handler := Authenticate(auth)(principalEcho(t, &got))
			req := httptest.NewRequest("GET", "/api/v1/requests", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			if tt.wantBody != "" && !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not mention %q", rr.Body.String(), tt.wantBody)
			}
			if tt.wantType != "" {
				if got == nil || got.Type != tt.wantType {
					t.Fatalf("principal: got %+v, want type %q", got, tt.wantType)
				}
			}
		})
	}
}

func TestAuthenticateTokenCarriesEmail(t *testing.T) {
	auth := service.NewAuthService("secret", nil)
	token, _ := auth.IssueJWT(context.Background(), "frontend", "ana@example.com", time.Hour)

	var got *Principal
	handler := Authenticate(auth)(principalEcho(t, &got))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.Email != "ana@example.com" || got.Subject != "frontend" {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	var got *Principal
	handler := Authenticate(service.NewAuthService("", nil))(principalEcho(t, &got))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got == nil || got.Type != PrincipalAnonymous {
		t.Fatalf("expected anonymous principal, got %+v", got)
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	if got := GetPrincipal(context.Background()); got != nil {
		t.Error("expected nil principal from bare context")
	}
}

// ---------------------------------------------------------------------------
// RateLimit and Logger tests
// ---------------------------------------------------------------------------

func TestRateLimitByCredential(t *testing.T) {
	handler := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(key string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if do("a") != http.StatusOK || do("a") != http.StatusOK {
		t.Fatal("first two calls should pass")
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Errorf("third call with the same key: got %d, want 429", code)
	}
	if code := do("b"); code != http.StatusOK {
		t.Errorf("another key from the same IP should pass, got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: got %d", i, rr.Code)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ok := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("healthy probe should log at debug, got %q", buf.String())
	}

	failing := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status=503") {
		t.Errorf("expected an error line for the failing probe, got %q", buf.String())
	}
}

func TestLoggerUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/api/v1/requests/{request_id}", func(w http.ResponseWriter, r *http.Request) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/requests/req-42", nil))

	out := buf.String()
	if !strings.Contains(out, "route=/api/v1/requests/{request_id}") {
		t.Errorf("expected route pattern in %q", out)
	}
	if !strings.Contains(out, "path=/api/v1/requests/req-42") {
		t.Errorf("expected raw path in %q", out)
	}
}
