package handler

import (
	"net/http"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// defaultEventHours is the look-back of the health event listing.
const defaultEventHours = 24

// HistoryHandler serves conversations and container health events.
type HistoryHandler struct {
	store store.Store
	now   func() time.Time
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(st store.Store) *HistoryHandler {
	return &HistoryHandler{store: st, now: time.Now}
}

// Conversations lists answered questions, newest first.
// GET /api/v1/conversations
func (h *HistoryHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	email, ok := scopedEmail(r, queryString(r, "user_email"))
	if !ok {
		writeError(w, http.StatusForbidden, "Token may only list its own conversations")
		return
	}

	limit := queryLimit(r)
	convs, err := h.store.ListConversations(r.Context(), model.ConversationFilter{
		UserEmail:   email,
		AssistantID: queryString(r, "assistant_id"),
		ThreadID:    queryString(r, "thread_id"),
		Limit:       limit,
	})
	if err != nil {
		writeStoreError(w, err, "conversations")
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeList(w, convs, len(convs), limit, start)
}

// HealthEvents lists container health events of the last ?hours=.
// GET /api/v1/health-events
func (h *HistoryHandler) HealthEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hours := queryInt(r, "hours", defaultEventHours)
	if hours <= 0 {
		writeError(w, http.StatusBadRequest, "hours must be positive")
		return
	}

	limit := queryLimit(r)
	events, err := h.store.ListHealthEvents(r.Context(), model.HealthFilter{
		ContainerID: queryString(r, "container_id"),
		ErrorType:   model.HealthEventType(queryString(r, "error_type")),
		Since:       h.now().Add(-time.Duration(hours) * time.Hour).Unix(),
		Limit:       limit,
	})
	if err != nil {
		writeStoreError(w, err, "health events")
		return
	}
	if events == nil {
		events = []model.HealthEvent{}
	}
	writeList(w, events, len(events), limit, start)
}
