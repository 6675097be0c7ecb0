package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// Sender publishes a message body onto the request queue.
type Sender interface {
	Send(ctx context.Context, messageID string, body []byte) error
}

// RequestHandler accepts questions and serves their status.
type RequestHandler struct {
	store  store.Store
	queue  Sender
	logger *slog.Logger
	now    func() time.Time
}

// NewRequestHandler creates a RequestHandler.
func NewRequestHandler(st store.Store, q Sender, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{store: st, queue: q, logger: logger, now: time.Now}
}

// Submit records a pending request and enqueues it for the processor.
// POST /api/v1/requests
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body model.SubmitRequest
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	body.Question = strings.TrimSpace(body.Question)
	if body.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	email, ok := scopedEmail(r, body.UserEmail)
	if !ok {
		writeError(w, http.StatusForbidden, "Token may only submit questions for its own user")
		return
	}
	if body.RequestType == "" {
		body.RequestType = model.DefaultRequestType
	}

	now := h.now().Unix()
	req := &model.Request{
		RequestID:   uuid.NewString(),
		Status:      model.StatusPending,
		RequestType: body.RequestType,
		UserEmail:   email,
		AssistantID: body.AssistantID,
		ThreadID:    body.ThreadID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.PutRequest(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record request: "+err.Error())
		return
	}

	msg, err := json.Marshal(model.QueueMessage{
		RequestID:   req.RequestID,
		Question:    body.Question,
		AssistantID: body.AssistantID,
		ThreadID:    body.ThreadID,
		UserEmail:   email,
		RequestType: body.RequestType,
		ReportName:  body.ReportName,
	})
	if err == nil {
		err = h.queue.Send(r.Context(), req.RequestID, msg)
	}
	if err != nil {
		h.logger.Error("failed to enqueue request", "request_id", req.RequestID, "error", err)
		result := &model.Result{Status: model.ResultError, Error: "failed to enqueue: " + err.Error()}
		if uerr := h.store.UpdateRequestStatus(context.WithoutCancel(r.Context()), req.RequestID, model.StatusError, result); uerr != nil {
			h.logger.Error("failed to mark request as errored", "request_id", req.RequestID, "error", uerr)
		}
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue request", map[string]interface{}{
			"request_id": req.RequestID,
		})
		return
	}

	h.logger.Info("request enqueued", "request_id", req.RequestID, "user_email", email)
	writeJSON(w, http.StatusAccepted, model.SubmitResponse{
		RequestID: req.RequestID,
		Status:    model.StatusPending,
	})
}

// Get returns a request with its result.
// GET /api/v1/requests/{request_id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")
	req, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Request")
		return
	}
	// Another user's request is reported as missing.
	if email, _ := scopedEmail(r, ""); email != "" && req.UserEmail != email {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// List returns the newest requests of one user.
// GET /api/v1/requests?user_email=
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	email, ok := scopedEmail(r, queryString(r, "user_email"))
	if !ok {
		writeError(w, http.StatusForbidden, "Token may only list its own requests")
		return
	}
	if email == "" {
		writeError(w, http.StatusBadRequest, "user_email is required")
		return
	}

	limit := queryLimit(r)
	reqs, err := h.store.ListUserRequests(r.Context(), email, limit)
	if err != nil {
		writeStoreError(w, err, "requests")
		return
	}
	if reqs == nil {
		reqs = []model.Request{}
	}
	writeList(w, reqs, len(reqs), limit, start)
}
