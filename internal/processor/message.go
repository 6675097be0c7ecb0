package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/queue"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

type action int

const (
	actionComplete action = iota
	actionAbandon
	actionDeadLetter
)

func (a action) String() string {
	switch a {
	case actionAbandon:
		return "abandon"
	case actionDeadLetter:
		return "dead_letter"
	default:
		return "complete"
	}
}

// settlement is how a message leaves the queue once its worker is done.
type settlement struct {
	action      action
	reason      string
	description string
}

var complete = settlement{action: actionComplete}

// handle processes one message and decides its settlement. It never
// settles the message itself.
func (p *Processor) handle(ctx context.Context, msg *queue.Message) (out settlement) {
	start := p.now()
	var qm model.QueueMessage

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic processing message",
				"message_id", msg.ID, "request_id", qm.RequestID, "panic", r, "stack", string(debug.Stack()))
			out = p.fail(ctx, qm.RequestID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := json.Unmarshal(msg.Body, &qm); err != nil {
		p.logger.Error("malformed message body", "message_id", msg.ID, "error", err)
		return settlement{action: actionDeadLetter, reason: "MalformedMessage", description: err.Error()}
	}
	if err := qm.Validate(); err != nil {
		p.logger.Error("message missing required fields",
			"message_id", msg.ID, "request_id", qm.RequestID, "error", err)
		return complete
	}

	log := p.logger.With("request_id", qm.RequestID, "user_email", qm.UserEmail)

	if !p.inflight.acquire(qm.RequestID, start) {
		log.Info("request already being processed, skipping")
		return complete
	}
	defer func() {
		p.inflight.release(qm.RequestID)
		p.batch.flush(ctx, true)
	}()

	existing, err := p.store.GetRequest(ctx, qm.RequestID)
	switch {
	case err == nil && existing.Status.Terminal():
		log.Info("request already processed, skipping", "status", string(existing.Status))
		return complete
	case err == nil:
		err = p.store.UpdateRequestStatus(ctx, qm.RequestID, model.StatusProcessing, nil)
	case errors.Is(err, store.ErrNotFound):
		err = p.store.PutRequest(ctx, newRequest(qm, p.now()))
	}
	if err != nil {
		log.Error("error processing message", "error", err)
		return p.fail(ctx, qm.RequestID, err)
	}

	log.Info("processing request", "request_type", qm.RequestType)
	stop := p.keepLocked(ctx, msg)
	result := p.answer(ctx, qm)
	stop()

	status := result.RequestStatus()
	if err := p.store.UpdateRequestStatus(context.WithoutCancel(ctx), qm.RequestID, status, result); err != nil {
		log.Error("error processing message", "error", err)
		return p.fail(ctx, qm.RequestID, err)
	}

	log.Info("completed processing request", "status", string(status), "duration", p.now().Sub(start))
	return complete
}

// fail records an unexpected failure on the request, best effort, and
// hands the message back to the queue for another attempt.
func (p *Processor) fail(ctx context.Context, requestID string, cause error) settlement {
	p.failures.Add(1)
	if requestID != "" {
		result := &model.Result{Status: model.ResultError, Error: cause.Error()}
		if err := p.store.UpdateRequestStatus(context.WithoutCancel(ctx), requestID, model.StatusError, result); err != nil {
			p.logger.Error("failed to record request error", "request_id", requestID, "error", err)
		}
	}
	return settlement{action: actionAbandon}
}

func newRequest(qm model.QueueMessage, now time.Time) *model.Request {
	return &model.Request{
		RequestID:   qm.RequestID,
		Status:      model.StatusProcessing,
		RequestType: qm.RequestType,
		UserEmail:   qm.UserEmail,
		AssistantID: qm.AssistantID,
		ThreadID:    qm.ThreadID,
		CreatedAt:   now.Unix(),
		UpdatedAt:   now.Unix(),
	}
}

// keepLocked renews the message lock until the returned func is called.
func (p *Processor) keepLocked(ctx context.Context, msg *queue.Message) func() {
	if p.cfg.LockRenewInterval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(p.cfg.LockRenewInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := p.queue.RenewLock(ctx, msg); err != nil && ctx.Err() == nil {
					p.logger.Warn("failed to renew message lock", "message_id", msg.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
