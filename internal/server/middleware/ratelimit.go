package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits each caller to requestsPerMinute in a sliding window.
// Callers presenting an API key or bearer token are keyed by that
// credential so several services behind one gateway IP do not starve each
// other; everyone else is keyed by IP. A non-positive limit disables it.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(keyByCredential),
	)
}

func keyByCredential(r *http.Request) (string, error) {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return "key:" + k, nil
	}
	if a := r.Header.Get("Authorization"); a != "" {
		return "auth:" + a, nil
	}
	return httprate.KeyByIP(r)
}
