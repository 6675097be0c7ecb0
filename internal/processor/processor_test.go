package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/queue"
	"github.com/insightshq/nl2sql-processor/internal/store"
	"github.com/insightshq/nl2sql-processor/internal/store/sqlite"
)

// fakeAnswerer answers through fn and records the threads it was asked on.
type fakeAnswerer struct {
	mu      sync.Mutex
	fn      func(ctx context.Context, threadID, question string) (*agent.Answer, error)
	threads []string
}

func (f *fakeAnswerer) Ask(ctx context.Context, threadID, question string) (*agent.Answer, error) {
	f.mu.Lock()
	f.threads = append(f.threads, threadID)
	f.mu.Unlock()
	if f.fn == nil {
		return &agent.Answer{
			Text:    "answer to " + question,
			Context: "SELECT 1",
			Usage:   model.Usage{PromptTokens: 3, CompletionTokens: 2},
		}, nil
	}
	return f.fn(ctx, threadID, question)
}

func (f *fakeAnswerer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.threads...)
}

type harness struct {
	p   *Processor
	q   *queue.Memory
	st  *sqlite.Store
	ans *fakeAnswerer
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	st, err := sqlite.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	cfg := DefaultConfig()
	cfg.ContainerID = "test-container"
	cfg.MaxWaitTime = 50 * time.Millisecond
	cfg.IdleSleep = 0
	cfg.LockRenewInterval = 0
	cfg.ConnectionErrorBackoff = 0
	cfg.BatchErrorBackoff = 0
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{q: queue.NewMemory(time.Minute), st: st, ans: &fakeAnswerer{}}
	h.p = New(h.q, st, h.ans, cfg, quietLogger())
	return h
}

func (h *harness) send(t *testing.T, msg any) {
	t.Helper()
	var body []byte
	switch m := msg.(type) {
	case string:
		body = []byte(m)
	default:
		b, err := json.Marshal(m)
		require.NoError(t, err)
		body = b
	}
	require.NoError(t, h.q.Send(context.Background(), "", body))
}

func (h *harness) request(t *testing.T, id string) *model.Request {
	t.Helper()
	req, err := h.st.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return req
}

func TestPollAnswersQuestion(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.send(t, model.QueueMessage{RequestID: "r1", Question: " Total budget? ", UserEmail: "ana@example.com", ReportName: "Budget"})

	require.NoError(t, h.p.poll(ctx))

	pending, inflight := h.q.Len()
	assert.Zero(t, pending)
	assert.Zero(t, inflight)

	req := h.request(t, "r1")
	assert.Equal(t, model.StatusCompleted, req.Status)
	require.NotNil(t, req.Result)
	assert.Equal(t, model.ResultSuccess, req.Result.Status)
	assert.Equal(t, "answer to Total budget?", req.Result.Response)
	assert.Equal(t, "SELECT 1", req.Result.Context)
	assert.True(t, strings.HasPrefix(req.Result.AssistantID, "asst_"))
	assert.True(t, strings.HasPrefix(req.Result.ThreadID, "thread_"))
	assert.Equal(t, req.Result.AssistantID, req.AssistantID)

	convs, err := h.st.ListConversations(ctx, model.ConversationFilter{UserEmail: "ana@example.com"})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Budget", convs[0].ReportName)
	assert.Equal(t, model.DefaultRequestType, convs[0].RequestType)
	assert.Equal(t, req.Result.ThreadID, convs[0].ThreadID)

	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, req.Result.AssistantID, pool[0].AssistantID)

	assert.Equal(t, int64(1), h.p.Stats().MessagesProcessed)
	assert.Zero(t, h.p.Stats().ActiveRequests)
}

func TestPollReusesCachedSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "first", UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))
	h.send(t, model.QueueMessage{RequestID: "r2", Question: "second", UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))

	first, second := h.request(t, "r1"), h.request(t, "r2")
	assert.Equal(t, first.Result.AssistantID, second.Result.AssistantID)
	assert.Equal(t, first.Result.ThreadID, second.Result.ThreadID)
	assert.Equal(t, 1, h.p.Stats().CachedAssistants)
}

func TestPollExplicitThreadWins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "first", UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))
	h.send(t, model.QueueMessage{RequestID: "r2", Question: "second", UserEmail: "ana@example.com", ThreadID: "thread_mine"})
	require.NoError(t, h.p.poll(ctx))

	assert.Equal(t, "thread_mine", h.request(t, "r2").Result.ThreadID)
}

func TestPollUnknownAssistantStartsFresh(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q", AssistantID: "asst_gone", ThreadID: "thread_1"})
	require.NoError(t, h.p.poll(context.Background()))

	res := h.request(t, "r1").Result
	assert.Equal(t, model.ResultSuccess, res.Status)
	assert.NotEqual(t, "asst_gone", res.AssistantID)
	assert.Equal(t, "thread_1", res.ThreadID)
}

func TestPollMalformedMessageIsDeadLettered(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, "{not json")
	require.NoError(t, h.p.poll(context.Background()))

	dead := h.q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "MalformedMessage", dead[0].Reason)
	assert.Empty(t, h.ans.calls())
}

func TestPollIncompleteMessageIsCompleted(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, map[string]string{"request_id": "r1"})
	require.NoError(t, h.p.poll(context.Background()))

	pending, inflight := h.q.Len()
	assert.Zero(t, pending+inflight)
	assert.Empty(t, h.q.DeadLetters())
	_, err := h.st.GetRequest(context.Background(), "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPollSkipsTerminalRequest(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.st.PutRequest(ctx, &model.Request{RequestID: "r1", Status: model.StatusCompleted}))

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "again"})
	require.NoError(t, h.p.poll(ctx))

	assert.Empty(t, h.ans.calls())
	pending, inflight := h.q.Len()
	assert.Zero(t, pending+inflight)
}

func TestPollUpdatesPendingRequest(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.st.PutRequest(ctx, &model.Request{RequestID: "r1", Status: model.StatusPending, UserEmail: "ana@example.com"}))

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.NoError(t, h.p.poll(ctx))

	req := h.request(t, "r1")
	assert.Equal(t, model.StatusCompleted, req.Status)
	assert.Equal(t, "ana@example.com", req.UserEmail)
}

func TestPollDropsDuplicateInFlight(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.p.inflight.acquire("r1", time.Now()))

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.NoError(t, h.p.poll(context.Background()))

	assert.Empty(t, h.ans.calls())
	pending, inflight := h.q.Len()
	assert.Zero(t, pending+inflight)
}

func TestTerminationWords(t *testing.T) {
	for _, q := range []string{"bye", "EXIT", " end "} {
		assert.True(t, IsTermination(q), q)
	}
	for _, q := range []string{"goodbye", "end of month budget", ""} {
		assert.False(t, IsTermination(q), q)
	}
}

func TestPollTerminationWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, model.QueueMessage{RequestID: "r1", Question: "Bye"})
	require.NoError(t, h.p.poll(context.Background()))

	res := h.request(t, "r1").Result
	assert.Equal(t, model.ResultSuccess, res.Status)
	assert.Equal(t, GoodbyeMessage, res.Message)
	assert.Empty(t, res.AssistantID)
	assert.Empty(t, res.ThreadID)
	assert.Empty(t, h.ans.calls())
}

func TestPollTerminationEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q", UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))
	assistantID := h.request(t, "r1").Result.AssistantID

	h.send(t, model.QueueMessage{RequestID: "r2", Question: "exit", AssistantID: assistantID, UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))

	res := h.request(t, "r2").Result
	assert.Equal(t, "Assistant "+assistantID+" deleted successfully", res.Message)
	assert.Empty(t, res.AssistantID)

	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)
	assert.Zero(t, h.p.Stats().CachedAssistants)
}

func TestPollAgentFailureCleansUpNewSession(t *testing.T) {
	h := newHarness(t, nil)
	h.ans.fn = func(context.Context, string, string) (*agent.Answer, error) {
		return nil, errors.New("model unavailable")
	}
	ctx := context.Background()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q", UserEmail: "ana@example.com"})
	require.NoError(t, h.p.poll(ctx))

	req := h.request(t, "r1")
	assert.Equal(t, model.StatusError, req.Status)
	assert.Equal(t, "Error processing question: model unavailable", req.Result.Message)
	assert.Empty(t, req.Result.AssistantID)
	assert.NotEmpty(t, req.Result.ThreadID)

	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)
	assert.Zero(t, h.p.Stats().CachedAssistants)

	pending, inflight := h.q.Len()
	assert.Zero(t, pending+inflight, "an answered error still completes the message")
}

func TestPollAgentFailureKeepsExistingSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.st.AddPoolAssistant(ctx, "asst_1"))
	h.ans.fn = func(context.Context, string, string) (*agent.Answer, error) {
		return nil, errors.New("model unavailable")
	}

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q", AssistantID: "asst_1", ThreadID: "thread_1"})
	require.NoError(t, h.p.poll(ctx))

	res := h.request(t, "r1").Result
	assert.Equal(t, "asst_1", res.AssistantID)
	pool, err := h.st.ListPoolAssistants(ctx)
	require.NoError(t, err)
	assert.Len(t, pool, 1)
}

func TestPollRequestTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequestTimeout = 20 * time.Millisecond })
	h.ans.fn = func(ctx context.Context, _, _ string) (*agent.Answer, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "slow"})
	require.NoError(t, h.p.poll(context.Background()))

	res := h.request(t, "r1").Result
	assert.Equal(t, "Error processing question: request timed out after 20ms", res.Message)
}

func TestPollRunsMessagesConcurrently(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxWorkers = 3 })
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	h.ans.fn = func(_ context.Context, _, q string) (*agent.Answer, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return &agent.Answer{Text: q}, nil
	}

	for _, id := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		h.send(t, model.QueueMessage{RequestID: id, Question: id})
	}
	require.NoError(t, h.p.poll(context.Background()))

	assert.Equal(t, 3, peak)
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		assert.Equal(t, model.StatusCompleted, h.request(t, id).Status, id)
	}
}

// failingStore fails the operations named in fail.
type failingStore struct {
	store.Store
	mu   sync.Mutex
	fail map[string]error
}

func (f *failingStore) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *failingStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	if err := f.err("GetRequest"); err != nil {
		return nil, err
	}
	return f.Store.GetRequest(ctx, id)
}

func (f *failingStore) InsertConversations(ctx context.Context, convs []model.Conversation) error {
	if err := f.err("InsertConversations"); err != nil {
		return err
	}
	return f.Store.InsertConversations(ctx, convs)
}

func (f *failingStore) Ping(ctx context.Context) error {
	if err := f.err("Ping"); err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

func TestPollStoreFailureAbandons(t *testing.T) {
	h := newHarness(t, nil)
	fs := &failingStore{Store: h.st, fail: map[string]error{"GetRequest": errors.New("cosmos unavailable")}}
	h.p = New(h.q, fs, h.ans, h.p.cfg, quietLogger())

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.NoError(t, h.p.poll(context.Background()))

	pending, inflight := h.q.Len()
	assert.Equal(t, 1, pending, "abandoned message goes back to the queue")
	assert.Zero(t, inflight)
	assert.Empty(t, h.ans.calls())
	assert.Equal(t, int64(1), h.p.Stats().Errors)
}

func TestPollPanicKeepsRequestIDs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.st.PutRequest(ctx, &model.Request{
		RequestID: "r1", Status: model.StatusPending, AssistantID: "asst_1", ThreadID: "thread_1",
	}))
	h.ans.fn = func(context.Context, string, string) (*agent.Answer, error) {
		panic("nil map")
	}

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q", AssistantID: "asst_1", ThreadID: "thread_1"})
	require.NoError(t, h.p.poll(ctx))

	req := h.request(t, "r1")
	assert.Equal(t, model.StatusError, req.Status)
	require.NotNil(t, req.Result)
	assert.Equal(t, "panic: nil map", req.Result.Error)
	assert.Equal(t, "asst_1", req.AssistantID)
	assert.Equal(t, "thread_1", req.ThreadID)
}

// brokenQueue fails every receive and peek.
type brokenQueue struct {
	queue.Queue
	err error
}

func (b *brokenQueue) Receive(context.Context, int, time.Duration) ([]*queue.Message, error) {
	return nil, b.err
}

func (b *brokenQueue) Peek(context.Context, int) ([]*queue.Message, error) {
	return nil, b.err
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.p.Run(ctx) }()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.Eventually(t, func() bool {
		req, err := h.st.GetRequest(context.Background(), "r1")
		return err == nil && req.Status == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.p.Alive(time.Second))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	events, err := h.st.ListHealthEvents(context.Background(), model.HealthFilter{ContainerID: "test-container"})
	require.NoError(t, err)
	kinds := map[model.HealthEventType]int{}
	for _, ev := range events {
		kinds[ev.ErrorType]++
	}
	assert.Equal(t, 1, kinds[model.EventContainerStartup])
	assert.Equal(t, 1, kinds[model.EventContainerShutdown])
}

func TestRunRestartsAfterQueueErrors(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnectionErrors = 2 })
	linkErr := fmt.Errorf("%w: amqp link detached", queue.ErrConnection)
	h.p = New(&brokenQueue{Queue: h.q, err: linkErr}, h.st, h.ans, h.p.cfg, quietLogger())

	err := h.p.Run(context.Background())
	require.ErrorIs(t, err, ErrRestartRequired)
	assert.Contains(t, err.Error(), "too many consecutive service bus errors (3)")

	ctx := context.Background()
	restarts, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventContainerRestart})
	require.NoError(t, err)
	assert.Len(t, restarts, 1)
	sbErrors, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventServiceBusError})
	require.NoError(t, err)
	assert.Len(t, sbErrors, 2, "the failed startup health check counts as the first connection error")
}

func TestRunRestartsAfterBatchErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.p = New(&brokenQueue{Queue: h.q, err: errors.New("decode batch: unexpected EOF")}, h.st, h.ans, h.p.cfg, quietLogger())

	err := h.p.Run(context.Background())
	require.ErrorIs(t, err, ErrRestartRequired)
	assert.Contains(t, err.Error(), "too many errors processing message batches (21)")

	ctx := context.Background()
	batchErrors, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventBatchError})
	require.NoError(t, err)
	require.Len(t, batchErrors, 21)
	assert.Contains(t, batchErrors[0].Details["message"], "unexpected EOF")

	sbErrors, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventServiceBusError})
	require.NoError(t, err)
	assert.Empty(t, sbErrors, "errors not raised by the broker are batch errors")
	restarts, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventContainerRestart})
	require.NoError(t, err)
	assert.Len(t, restarts, 1)
}

// flakyQueue receives from the embedded queue but fails every n-th call
// with err. Calls before the first failure succeed.
type flakyQueue struct {
	queue.Queue
	mu    sync.Mutex
	calls int
	every int
	err   error
}

func (f *flakyQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]*queue.Message, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls%f.every == 0
	f.mu.Unlock()
	if fail {
		return nil, f.err
	}
	return f.Queue.Receive(ctx, max, wait)
}

func TestRunBatchErrorsResetOnSuccess(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxBatchErrors = 1 })
	q := &flakyQueue{Queue: h.q, every: 2, err: errors.New("transient")}
	h.p = New(q, h.st, h.ans, h.p.cfg, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.p.Run(ctx) }()

	require.Eventually(t, func() bool {
		events, err := h.st.ListHealthEvents(context.Background(), model.HealthFilter{ErrorType: model.EventBatchError})
		return err == nil && len(events) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "alternating failures never exceed the consecutive limit")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// settleFailQueue fails every settlement.
type settleFailQueue struct {
	queue.Queue
	err error
}

func (s *settleFailQueue) Complete(context.Context, *queue.Message) error { return s.err }
func (s *settleFailQueue) Abandon(context.Context, *queue.Message) error  { return s.err }

func TestSettleFailureIsNotBatchError(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxBatchErrors = 0 })
	h.p = New(&settleFailQueue{Queue: h.q, err: errors.New("lock lost")}, h.st, h.ans, h.p.cfg, quietLogger())
	ctx := context.Background()

	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.NoError(t, h.p.poll(ctx))
	assert.Equal(t, model.StatusCompleted, h.request(t, "r1").Status)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.p.Run(runCtx) }()

	h.send(t, model.QueueMessage{RequestID: "r2", Question: "q"})
	require.Eventually(t, func() bool {
		req, err := h.st.GetRequest(ctx, "r2")
		return err == nil && req.Status == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	events, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventBatchError})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, h.p.Stats().Errors)
}

func TestCheckHealth(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	assert.True(t, h.p.checkHealth(ctx))

	fs := &failingStore{Store: h.st, fail: map[string]error{"Ping": errors.New("timeout")}}
	h.p = New(h.q, fs, h.ans, h.p.cfg, quietLogger())
	assert.False(t, h.p.checkHealth(ctx))
	assert.False(t, h.p.checkHealth(ctx))
	assert.Equal(t, int64(2), h.p.Stats().ConnectionErrors)

	events, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventCosmosDBConnect})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "timeout", events[0].Details["message"])

	fs.mu.Lock()
	delete(fs.fail, "Ping")
	fs.mu.Unlock()
	assert.True(t, h.p.checkHealth(ctx))
	assert.Zero(t, h.p.Stats().ConnectionErrors)
}

func TestWatchRestartsWhenIdleAndUnhealthy(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.NoMessageTimeout = time.Minute })
	h.p = New(&brokenQueue{Queue: h.q, err: errors.New("unauthorized")}, h.st, h.ans, h.p.cfg, quietLogger())
	now := time.Now()
	h.p.now = func() time.Time { return now }
	h.p.lastHealth = now
	h.p.lastMessage = now.Add(-2 * time.Minute)

	err := h.p.watch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message timeout")

	events, lerr := h.st.ListHealthEvents(context.Background(), model.HealthFilter{ErrorType: model.EventServiceBusConnect})
	require.NoError(t, lerr)
	assert.Len(t, events, 1)
}

func TestMonitorStuckReportsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := time.Now()
	h.p.now = func() time.Time { return now }
	h.p.lastHealth, h.p.lastMessage = now, now

	require.True(t, h.p.inflight.acquire("slow", now.Add(-6*time.Minute)))
	require.True(t, h.p.inflight.acquire("fast", now.Add(-time.Minute)))

	require.NoError(t, h.p.watch(ctx))
	require.NoError(t, h.p.watch(ctx))

	events, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventStuckRequests})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Details, "slow")
	assert.NotContains(t, events[0].Details, "fast")
}

func TestReportMetricsResetsCounters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.send(t, model.QueueMessage{RequestID: "r1", Question: "q"})
	require.NoError(t, h.p.poll(ctx))
	h.p.failures.Add(2)

	h.p.ReportMetrics(ctx)

	events, err := h.st.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventMetrics})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 1, events[0].Details["messages_processed"])
	assert.EqualValues(t, 2, events[0].Details["errors"])

	s := h.p.Stats()
	assert.Zero(t, s.MessagesProcessed)
	assert.Zero(t, s.Errors)
}
