package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// Session is the agent session a user last talked to.
type Session struct {
	AssistantID string
	ThreadID    string
	LastUsed    time.Time
}

// sessions caches the last session per user and keeps the assistant_pool
// collection in step with the sessions this container opens and ends.
type sessions struct {
	mu     sync.Mutex
	byUser map[string]*Session
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

func newSessions(st store.Store, now func() time.Time, logger *slog.Logger) *sessions {
	return &sessions{
		byUser: make(map[string]*Session),
		store:  st,
		now:    now,
		logger: logger,
	}
}

// lookup returns the cached session of a user and marks it used.
func (s *sessions) lookup(userEmail string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userEmail]
	if !ok {
		return Session{}, false
	}
	sess.LastUsed = s.now()
	return *sess, true
}

func (s *sessions) remember(userEmail, assistantID, threadID string) {
	s.mu.Lock()
	s.byUser[userEmail] = &Session{AssistantID: assistantID, ThreadID: threadID, LastUsed: s.now()}
	s.mu.Unlock()
}

// forget drops every cache entry pointing at assistantID.
func (s *sessions) forget(assistantID string) {
	s.mu.Lock()
	for user, sess := range s.byUser {
		if sess.AssistantID == assistantID {
			delete(s.byUser, user)
		}
	}
	s.mu.Unlock()
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

func (s *sessions) lastUsed(assistantID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byUser {
		if sess.AssistantID == assistantID {
			return sess.LastUsed, true
		}
	}
	return time.Time{}, false
}

// exists reports whether assistantID is a live session, either cached here
// or registered in the pool by any container.
func (s *sessions) exists(ctx context.Context, assistantID string) (bool, error) {
	if _, ok := s.lastUsed(assistantID); ok {
		return true, nil
	}
	pool, err := s.store.ListPoolAssistants(ctx)
	if err != nil {
		return false, fmt.Errorf("list assistant pool: %w", err)
	}
	for _, a := range pool {
		if a.AssistantID == assistantID {
			return true, nil
		}
	}
	return false, nil
}

// open starts a new session and registers it in the pool.
func (s *sessions) open(ctx context.Context) (string, error) {
	id := "asst_" + uuid.NewString()
	if err := s.store.AddPoolAssistant(ctx, id); err != nil {
		return "", fmt.Errorf("register assistant: %w", err)
	}
	s.logger.Info("created new assistant", "assistant_id", id)
	return id, nil
}

// touch refreshes the pool entry of a session after it answered.
func (s *sessions) touch(ctx context.Context, assistantID string) {
	if err := s.store.AddPoolAssistant(ctx, assistantID); err != nil {
		s.logger.Warn("failed to refresh assistant pool entry", "assistant_id", assistantID, "error", err)
	}
}

// end removes a session from the pool and the cache.
func (s *sessions) end(ctx context.Context, assistantID string) error {
	if err := s.store.RemovePoolAssistant(ctx, assistantID); err != nil {
		return fmt.Errorf("remove assistant %s: %w", assistantID, err)
	}
	s.forget(assistantID)
	s.logger.Info("assistant deleted successfully", "assistant_id", assistantID)
	return nil
}

// inactive decides whether a session has been idle longer than idle. The
// newest conversation of the assistant is preferred, then the cache, then
// fallback. Without any of them the session counts as inactive.
func (s *sessions) inactive(ctx context.Context, assistantID string, fallback time.Time, idle time.Duration) bool {
	var last time.Time
	unix, err := s.store.AssistantLastActivity(ctx, assistantID)
	switch {
	case err == nil:
		last = time.Unix(unix, 0)
	case errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn("failed to read assistant activity", "assistant_id", assistantID, "error", err)
	}
	if last.IsZero() {
		if used, ok := s.lastUsed(assistantID); ok {
			last = used
		} else {
			last = fallback
		}
	}
	if last.IsZero() {
		return true
	}
	return s.now().Sub(last) > idle
}

// sweep ends every session idle for longer than idle, both the cached ones
// and pool entries no cache knows about. It returns how many were ended.
func (s *sessions) sweep(ctx context.Context, idle time.Duration) (int, error) {
	candidates := make(map[string]time.Time)

	s.mu.Lock()
	for _, sess := range s.byUser {
		candidates[sess.AssistantID] = time.Time{}
	}
	s.mu.Unlock()

	pool, err := s.store.ListPoolAssistants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list assistant pool: %w", err)
	}
	for _, a := range pool {
		candidates[a.AssistantID] = time.Unix(a.UpdatedAt, 0)
	}

	ended := 0
	var errs []error
	for id, registered := range candidates {
		if !s.inactive(ctx, id, registered, idle) {
			continue
		}
		s.logger.Info("assistant inactive, deleting", "assistant_id", id)
		if err := s.end(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		ended++
	}
	return ended, errors.Join(errs...)
}

// History serves the recent turns of a thread from stored conversations.
type History struct {
	store store.Store
}

var _ agent.History = (*History)(nil)

// NewHistory returns an agent.History backed by st.
func NewHistory(st store.Store) *History {
	return &History{store: st}
}

// RecentTurns returns the last n answered questions of threadID, oldest
// first.
func (h *History) RecentTurns(ctx context.Context, threadID string, n int) ([]agent.Turn, error) {
	convs, err := h.store.ListConversations(ctx, model.ConversationFilter{ThreadID: threadID, Limit: n})
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	turns := make([]agent.Turn, len(convs))
	for i, c := range convs {
		turns[len(convs)-1-i] = agent.Turn{Question: c.Question, Answer: c.Answer}
	}
	return turns, nil
}
