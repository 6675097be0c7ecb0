package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// GoodbyeMessage answers a termination word sent without a session.
const GoodbyeMessage = "Goodbye!"

var terminationWords = []string{"bye", "exit", "end"}

// IsTermination reports whether question asks to end the session.
func IsTermination(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, w := range terminationWords {
		if q == w {
			return true
		}
	}
	return false
}

// answer runs one question and builds the result stored on the request.
// Failures are reported in the result, never returned.
func (p *Processor) answer(ctx context.Context, qm model.QueueMessage) *model.Result {
	log := p.logger.With("request_id", qm.RequestID, "user_email", qm.UserEmail)

	if IsTermination(qm.Question) {
		log.Info("received termination request")
		if qm.AssistantID != "" {
			return p.endSession(ctx, qm.AssistantID)
		}
		return &model.Result{Status: model.ResultSuccess, Message: GoodbyeMessage}
	}

	assistantID, threadID := qm.AssistantID, qm.ThreadID
	if assistantID == "" && qm.UserEmail != "" {
		if sess, ok := p.sessions.lookup(qm.UserEmail); ok {
			log.Info("using cached assistant", "assistant_id", sess.AssistantID)
			assistantID = sess.AssistantID
			if threadID == "" {
				threadID = sess.ThreadID
			}
		}
	}

	if assistantID != "" {
		ok, err := p.sessions.exists(ctx, assistantID)
		if err != nil {
			return sessionError(err, assistantID, threadID)
		}
		if !ok {
			log.Warn("unknown assistant, starting a new one", "assistant_id", assistantID)
			assistantID = ""
		}
	}

	created := false
	if assistantID == "" {
		id, err := p.sessions.open(ctx)
		if err != nil {
			return sessionError(err, "", threadID)
		}
		assistantID, created = id, true
	}
	if threadID == "" {
		threadID = "thread_" + uuid.NewString()
		log.Info("created new thread", "thread_id", threadID, "assistant_id", assistantID)
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	ans, err := p.answerer.Ask(actx, threadID, qm.Question)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("request timed out after %s", p.cfg.RequestTimeout)
		}
		log.Error("error answering question", "assistant_id", assistantID, "thread_id", threadID, "error", err)
		result := &model.Result{
			Status:      model.ResultError,
			Message:     "Error processing question: " + err.Error(),
			AssistantID: assistantID,
			ThreadID:    threadID,
		}
		if created {
			log.Info("cleaning up assistant after error", "assistant_id", assistantID)
			if derr := p.sessions.end(context.WithoutCancel(ctx), assistantID); derr != nil {
				log.Error("failed to clean up assistant after error", "assistant_id", assistantID, "error", derr)
			}
			result.AssistantID = ""
		}
		return result
	}

	now := p.now().Unix()
	p.batch.add(ctx, model.Conversation{
		RequestID:   qm.RequestID,
		Question:    qm.Question,
		Answer:      ans.Text,
		UserEmail:   qm.UserEmail,
		AssistantID: assistantID,
		ThreadID:    threadID,
		ReportName:  qm.ReportName,
		RequestType: qm.RequestType,
		Context:     ans.Context,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !created {
		p.sessions.touch(ctx, assistantID)
	}
	if qm.UserEmail != "" {
		p.sessions.remember(qm.UserEmail, assistantID, threadID)
	}

	usage := ans.Usage
	return &model.Result{
		Status:      model.ResultSuccess,
		Response:    ans.Text,
		AssistantID: assistantID,
		ThreadID:    threadID,
		Context:     ans.Context,
		Usage:       &usage,
	}
}

// endSession answers a termination word sent for an existing session.
func (p *Processor) endSession(ctx context.Context, assistantID string) *model.Result {
	if err := p.sessions.end(ctx, assistantID); err != nil {
		p.logger.Error("error deleting assistant", "assistant_id", assistantID, "error", err)
		return &model.Result{
			Status:      model.ResultError,
			Message:     "Error deleting assistant: " + err.Error(),
			AssistantID: assistantID,
		}
	}
	return &model.Result{
		Status:  model.ResultSuccess,
		Message: fmt.Sprintf("Assistant %s deleted successfully", assistantID),
	}
}

func sessionError(err error, assistantID, threadID string) *model.Result {
	return &model.Result{
		Status:      model.ResultError,
		Message:     "Error processing question: " + err.Error(),
		AssistantID: assistantID,
		ThreadID:    threadID,
	}
}
