package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

func TestBatcherFlushesWhenFull(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	b := newBatcher(h.st, 2, quietLogger())

	b.add(ctx, model.Conversation{RequestID: "r1", ThreadID: "t"})
	assert.Equal(t, 1, b.len())
	assert.Zero(t, b.flush(ctx, false), "a partial batch waits")

	b.add(ctx, model.Conversation{RequestID: "r2", ThreadID: "t"})
	assert.Zero(t, b.len())

	convs, err := h.st.ListConversations(ctx, model.ConversationFilter{ThreadID: "t"})
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestBatcherFallsBackToSingleInserts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	fs := &failingStore{Store: h.st, fail: map[string]error{"InsertConversations": errors.New("request rate is large")}}
	b := newBatcher(fs, 10, quietLogger())

	b.add(ctx, model.Conversation{RequestID: "r1", ThreadID: "t"})
	b.add(ctx, model.Conversation{RequestID: "r2", ThreadID: "t"})
	assert.Equal(t, 2, b.flush(ctx, true))
	assert.Zero(t, b.flush(ctx, true), "nothing left to write")

	convs, err := h.st.ListConversations(ctx, model.ConversationFilter{ThreadID: "t"})
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestHistoryRecentTurnsOldestFirst(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i, q := range []string{"q1", "q2", "q3", "q4"} {
		ts := int64(1000 + i)
		require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{
			RequestID: q, Question: q, Answer: "a" + q[1:], ThreadID: "t1", CreatedAt: ts, UpdatedAt: ts,
		}))
	}
	require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{RequestID: "x", Question: "other", ThreadID: "t2"}))

	turns, err := NewHistory(h.st).RecentTurns(ctx, "t1", 3)
	require.NoError(t, err)
	assert.Equal(t, []agent.Turn{
		{Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3"},
		{Question: "q4", Answer: "a4"},
	}, turns)
}

func TestSessionsLookupTouches(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Unix(1_700_000_000, 0)
	s := newSessions(h.st, func() time.Time { return now }, quietLogger())

	_, ok := s.lookup("ana@example.com")
	assert.False(t, ok)

	s.remember("ana@example.com", "asst_1", "thread_1")
	now = now.Add(time.Minute)
	sess, ok := s.lookup("ana@example.com")
	require.True(t, ok)
	assert.Equal(t, "asst_1", sess.AssistantID)
	assert.Equal(t, "thread_1", sess.ThreadID)
	assert.Equal(t, now, sess.LastUsed)

	s.forget("asst_1")
	assert.Zero(t, s.len())
}

func TestSessionsInactive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := newSessions(h.st, func() time.Time { return now }, quietLogger())
	idle := time.Hour

	// Stored activity wins.
	recent := now.Add(-10 * time.Minute).Unix()
	require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{RequestID: "r1", AssistantID: "asst_active", CreatedAt: recent, UpdatedAt: recent}))
	assert.False(t, s.inactive(ctx, "asst_active", time.Time{}, idle))

	old := now.Add(-2 * time.Hour).Unix()
	require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{RequestID: "r2", AssistantID: "asst_old", CreatedAt: old, UpdatedAt: old}))
	assert.True(t, s.inactive(ctx, "asst_old", time.Time{}, idle))

	// Then the cache.
	s.remember("ana@example.com", "asst_cached", "thread_1")
	assert.False(t, s.inactive(ctx, "asst_cached", time.Time{}, idle))

	// Then the fallback, and nothing at all means inactive.
	assert.False(t, s.inactive(ctx, "asst_new", now.Add(-time.Minute), idle))
	assert.True(t, s.inactive(ctx, "asst_unknown", time.Time{}, idle))
}

func TestCleanup(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.RequestRetentionDays = 7
		c.ConversationRetentionDays = 30
		c.HealthRetentionDays = 7
		c.SessionIdleTimeout = time.Hour
	})
	ctx := context.Background()
	now := time.Now()
	h.p.now = func() time.Time { return now }
	days := func(n int) int64 { return now.Add(-time.Duration(n) * 24 * time.Hour).Unix() }

	require.NoError(t, h.st.PutRequest(ctx, &model.Request{RequestID: "old", Status: model.StatusCompleted, CreatedAt: days(8), UpdatedAt: days(8)}))
	require.NoError(t, h.st.PutRequest(ctx, &model.Request{RequestID: "new", Status: model.StatusCompleted, CreatedAt: days(1), UpdatedAt: days(1)}))
	require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{RequestID: "old", AssistantID: "asst_stale", CreatedAt: days(31), UpdatedAt: days(31)}))
	require.NoError(t, h.st.InsertConversation(ctx, model.Conversation{RequestID: "new", AssistantID: "asst_live", CreatedAt: now.Unix(), UpdatedAt: now.Unix()}))
	require.NoError(t, h.st.LogHealthEvent(ctx, model.NewHealthEvent(model.EventMetrics, nil, "c", days(8))))
	require.NoError(t, h.st.LogHealthEvent(ctx, model.NewHealthEvent(model.EventMetrics, nil, "c", days(1))))

	require.NoError(t, h.st.AddPoolAssistant(ctx, "asst_live"))
	h.p.sessions.remember("ana@example.com", "asst_live", "thread_1")
	// Cached without stored conversations, last used two hours ago.
	h.p.sessions.remember("bob@example.com", "asst_stale", "thread_2")
	h.p.sessions.byUser["bob@example.com"].LastUsed = now.Add(-2 * time.Hour)

	rep, err := h.p.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Requests)
	assert.Equal(t, int64(1), rep.Conversations)
	assert.Equal(t, int64(1), rep.HealthEvents)
	assert.Equal(t, 1, rep.Assistants)

	_, ok := h.p.sessions.lookup("bob@example.com")
	assert.False(t, ok)
	_, ok = h.p.sessions.lookup("ana@example.com")
	assert.True(t, ok)

	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "asst_live", pool[0].AssistantID)
}

func TestCleanupEndsOrphanedPoolEntries(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SessionIdleTimeout = time.Hour })
	ctx := context.Background()
	require.NoError(t, h.st.AddPoolAssistant(ctx, "asst_orphan"))

	// Registered just now, so not yet idle.
	rep, err := h.p.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Assistants)

	later := time.Now().Add(2 * time.Hour)
	h.p.now = func() time.Time { return later }
	rep, err = h.p.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Assistants)

	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)
}
