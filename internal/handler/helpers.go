package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/server/middleware"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// maxListLimit caps the limit query parameter of every list endpoint.
const maxListLimit = 500

// maxBodyBytes bounds request bodies; questions are short.
const maxBodyBytes = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeList wraps items in the standard list envelope.
func writeList(w http.ResponseWriter, items interface{}, count, limit int, start time.Time) {
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: items,
		Meta: &model.ResponseMeta{
			Count:  count,
			Limit:  limit,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// writeStoreError maps store failures onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to read "+what+": "+err.Error())
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryLimit reads ?limit= within [1, maxListLimit], defaulting to the
// store's list limit.
func queryLimit(r *http.Request) int {
	return clampInt(queryInt(r, "limit", store.DefaultListLimit), 1, maxListLimit)
}

// scopedEmail resolves which user's data the caller may read. A token that
// names a user is pinned to that user; asking for someone else is refused.
// Other principals may read any user, including none.
func scopedEmail(r *http.Request, requested string) (string, bool) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil || p.Email == "" {
		return requested, true
	}
	if requested != "" && requested != p.Email {
		return "", false
	}
	return p.Email, true
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
