package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// RetryPolicy bounds how often a failed store call is retried.
type RetryPolicy struct {
	MaxTries        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries five times with exponential backoff capped at
// thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// Retrying decorates a Store so transient failures are retried. Not-found
// and context errors are returned immediately.
type Retrying struct {
	next   Store
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps next with the given policy.
func WithRetry(next Store, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxTries < 1 {
		policy.MaxTries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// Unwrap returns the decorated store.
func (r *Retrying) Unwrap() Store { return r.next }

func (r *Retrying) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxTries-1)), ctx)
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("store operation failed, retrying",
			"op", op, "attempt", attempt, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(wrapped, r.backoff(ctx), notify)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func retryValue[T any](r *Retrying, ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var out T
	err := r.do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Retrying) Ping(ctx context.Context) error {
	return r.do(ctx, "ping", func() error { return r.next.Ping(ctx) })
}

func (r *Retrying) Close(ctx context.Context) error { return r.next.Close(ctx) }

func (r *Retrying) PutRequest(ctx context.Context, req *model.Request) error {
	return r.do(ctx, "put_request", func() error { return r.next.PutRequest(ctx, req) })
}

func (r *Retrying) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, result *model.Result) error {
	return r.do(ctx, "update_request_status", func() error {
		return r.next.UpdateRequestStatus(ctx, id, status, result)
	})
}

func (r *Retrying) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	return retryValue(r, ctx, "get_request", func() (*model.Request, error) {
		return r.next.GetRequest(ctx, id)
	})
}

func (r *Retrying) ListUserRequests(ctx context.Context, userEmail string, limit int) ([]model.Request, error) {
	return retryValue(r, ctx, "list_user_requests", func() ([]model.Request, error) {
		return r.next.ListUserRequests(ctx, userEmail, limit)
	})
}

func (r *Retrying) DeleteRequestsBefore(ctx context.Context, unix int64) (int64, error) {
	return retryValue(r, ctx, "delete_requests", func() (int64, error) {
		return r.next.DeleteRequestsBefore(ctx, unix)
	})
}

func (r *Retrying) InsertConversation(ctx context.Context, conv model.Conversation) error {
	return r.do(ctx, "insert_conversation", func() error { return r.next.InsertConversation(ctx, conv) })
}

// InsertConversations is not retried: a partially applied bulk insert
// would duplicate rows, and the caller falls back to single inserts.
func (r *Retrying) InsertConversations(ctx context.Context, convs []model.Conversation) error {
	return r.next.InsertConversations(ctx, convs)
}

func (r *Retrying) ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error) {
	return retryValue(r, ctx, "list_conversations", func() ([]model.Conversation, error) {
		return r.next.ListConversations(ctx, filter)
	})
}

func (r *Retrying) AssistantLastActivity(ctx context.Context, assistantID string) (int64, error) {
	return retryValue(r, ctx, "assistant_last_activity", func() (int64, error) {
		return r.next.AssistantLastActivity(ctx, assistantID)
	})
}

func (r *Retrying) DeleteConversationsBefore(ctx context.Context, unix int64) (int64, error) {
	return retryValue(r, ctx, "delete_conversations", func() (int64, error) {
		return r.next.DeleteConversationsBefore(ctx, unix)
	})
}

func (r *Retrying) LogHealthEvent(ctx context.Context, ev model.HealthEvent) error {
	return r.do(ctx, "log_health_event", func() error { return r.next.LogHealthEvent(ctx, ev) })
}

func (r *Retrying) ListHealthEvents(ctx context.Context, filter model.HealthFilter) ([]model.HealthEvent, error) {
	return retryValue(r, ctx, "list_health_events", func() ([]model.HealthEvent, error) {
		return r.next.ListHealthEvents(ctx, filter)
	})
}

func (r *Retrying) DeleteHealthEventsBefore(ctx context.Context, unix int64) (int64, error) {
	return retryValue(r, ctx, "delete_health_events", func() (int64, error) {
		return r.next.DeleteHealthEventsBefore(ctx, unix)
	})
}

func (r *Retrying) ListPoolAssistants(ctx context.Context) ([]model.PoolAssistant, error) {
	return retryValue(r, ctx, "list_pool_assistants", func() ([]model.PoolAssistant, error) {
		return r.next.ListPoolAssistants(ctx)
	})
}

func (r *Retrying) AddPoolAssistant(ctx context.Context, assistantID string) error {
	return r.do(ctx, "add_pool_assistant", func() error { return r.next.AddPoolAssistant(ctx, assistantID) })
}

func (r *Retrying) RemovePoolAssistant(ctx context.Context, assistantID string) error {
	return r.do(ctx, "remove_pool_assistant", func() error { return r.next.RemovePoolAssistant(ctx, assistantID) })
}

func (r *Retrying) Purge(ctx context.Context) (map[string]int64, error) {
	return retryValue(r, ctx, "purge", func() (map[string]int64, error) {
		return r.next.Purge(ctx)
	})
}
