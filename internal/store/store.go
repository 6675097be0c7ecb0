// Package store persists requests, conversations, container health events
// and the assistant pool. Backends live in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Collection names shared by every backend.
const (
	CollectionRequests      = "requests"
	CollectionConversations = "conversations"
	CollectionHealth        = "container_health"
	CollectionAssistantPool = "assistant_pool"
)

// Store is the persistence contract of the processor and the status API.
type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// PutRequest inserts or replaces the request keyed by RequestID.
	PutRequest(ctx context.Context, req *model.Request) error
	// UpdateRequestStatus sets status and result. The assistant and thread
	// ids are copied from the result when it carries them. Returns
	// ErrNotFound when the request does not exist.
	UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus, result *model.Result) error
	GetRequest(ctx context.Context, requestID string) (*model.Request, error)
	// ListUserRequests returns the newest requests of a user first.
	ListUserRequests(ctx context.Context, userEmail string, limit int) ([]model.Request, error)
	DeleteRequestsBefore(ctx context.Context, unix int64) (int64, error)

	InsertConversation(ctx context.Context, conv model.Conversation) error
	InsertConversations(ctx context.Context, convs []model.Conversation) error
	ListConversations(ctx context.Context, filter model.ConversationFilter) ([]model.Conversation, error)
	// AssistantLastActivity returns the newest updated_at among the
	// conversations of an assistant, or ErrNotFound.
	AssistantLastActivity(ctx context.Context, assistantID string) (int64, error)
	DeleteConversationsBefore(ctx context.Context, unix int64) (int64, error)

	LogHealthEvent(ctx context.Context, ev model.HealthEvent) error
	ListHealthEvents(ctx context.Context, filter model.HealthFilter) ([]model.HealthEvent, error)
	DeleteHealthEventsBefore(ctx context.Context, unix int64) (int64, error)

	ListPoolAssistants(ctx context.Context) ([]model.PoolAssistant, error)
	AddPoolAssistant(ctx context.Context, assistantID string) error
	RemovePoolAssistant(ctx context.Context, assistantID string) error

	// Purge empties requests, conversations and health events and reports
	// how many documents each collection lost.
	Purge(ctx context.Context) (map[string]int64, error)
}

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 50

// Limit normalizes a caller supplied list limit.
func Limit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
