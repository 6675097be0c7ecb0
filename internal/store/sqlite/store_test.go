package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &model.Request{
		RequestID:   "req-1",
		Status:      model.StatusPending,
		RequestType: model.DefaultRequestType,
		UserEmail:   "ana@example.com",
	}
	if err := s.PutRequest(ctx, req); err != nil {
		t.Fatalf("PutRequest: %v", err)
	}
	if req.CreatedAt == 0 || req.UpdatedAt == 0 {
		t.Error("timestamps should be set on insert")
	}

	got, err := s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.StatusPending || got.Result != nil {
		t.Errorf("unexpected request: %+v", got)
	}

	result := &model.Result{
		Status:      model.ResultSuccess,
		Response:    "42 invoices",
		AssistantID: "asst-1",
		ThreadID:    "thread-1",
		Context:     "SELECT TOP 50 * FROM dbo.Invoices",
	}
	if err := s.UpdateRequestStatus(ctx, "req-1", model.StatusCompleted, result); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}

	got, err = s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Result == nil || got.Result.Response != "42 invoices" {
		t.Errorf("result not stored: %+v", got.Result)
	}
	if got.AssistantID != "asst-1" || got.ThreadID != "thread-1" {
		t.Errorf("ids should be copied from the result, got %q/%q", got.AssistantID, got.ThreadID)
	}
}

func TestUpdateRequestStatusKeepsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &model.Request{RequestID: "req-1", Status: model.StatusProcessing, AssistantID: "asst-1", ThreadID: "thread-1"}
	if err := s.PutRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	failed := &model.Result{Status: model.ResultError, Error: "store unavailable"}
	if err := s.UpdateRequestStatus(ctx, "req-1", model.StatusError, failed); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}

	got, err := s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.StatusError || got.Result == nil || got.Result.Error != "store unavailable" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.AssistantID != "asst-1" || got.ThreadID != "thread-1" {
		t.Errorf("ids were blanked by a result without ids, got %q/%q", got.AssistantID, got.ThreadID)
	}
}

func TestPutRequestUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &model.Request{RequestID: "req-1", Status: model.StatusPending}
	if err := s.PutRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	req.Status = model.StatusProcessing
	if err := s.PutRequest(ctx, req); err != nil {
		t.Fatalf("second PutRequest: %v", err)
	}
	got, _ := s.GetRequest(ctx, "req-1")
	if got.Status != model.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
}

func TestRequestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetRequest(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRequest error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateRequestStatus(ctx, "missing", model.StatusError, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateRequestStatus error = %v, want ErrNotFound", err)
	}
}

func TestListUserRequestsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		req := &model.Request{RequestID: id, Status: model.StatusPending, UserEmail: "u@example.com", CreatedAt: int64(100 + i)}
		if err := s.PutRequest(ctx, req); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutRequest(ctx, &model.Request{RequestID: "other", Status: model.StatusPending, UserEmail: "x@example.com"}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListUserRequests(ctx, "u@example.com", 2)
	if err != nil {
		t.Fatalf("ListUserRequests: %v", err)
	}
	if len(list) != 2 || list[0].RequestID != "c" || list[1].RequestID != "b" {
		t.Errorf("unexpected order: %+v", list)
	}
}

func TestDeleteRequestsBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutRequest(ctx, &model.Request{RequestID: "old", Status: model.StatusCompleted, CreatedAt: 10})
	s.PutRequest(ctx, &model.Request{RequestID: "new", Status: model.StatusCompleted, CreatedAt: 1000})

	n, err := s.DeleteRequestsBefore(ctx, 500)
	if err != nil {
		t.Fatalf("DeleteRequestsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if _, err := s.GetRequest(ctx, "new"); err != nil {
		t.Errorf("new request should survive: %v", err)
	}
}

func TestConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertConversation(ctx, model.Conversation{
		RequestID: "r1", Question: "q1", Answer: "a1", ThreadID: "t1", AssistantID: "asst", CreatedAt: 100, UpdatedAt: 100,
	}); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	batch := []model.Conversation{
		{RequestID: "r2", Question: "q2", Answer: "a2", ThreadID: "t1", AssistantID: "asst", CreatedAt: 200, UpdatedAt: 200},
		{RequestID: "r3", Question: "q3", Answer: "a3", ThreadID: "t2", AssistantID: "other", CreatedAt: 300, UpdatedAt: 300},
	}
	if err := s.InsertConversations(ctx, batch); err != nil {
		t.Fatalf("InsertConversations: %v", err)
	}
	if err := s.InsertConversations(ctx, nil); err != nil {
		t.Errorf("empty batch should be a no-op: %v", err)
	}

	list, err := s.ListConversations(ctx, model.ConversationFilter{ThreadID: "t1"})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 2 || list[0].RequestID != "r2" {
		t.Errorf("unexpected conversations: %+v", list)
	}

	last, err := s.AssistantLastActivity(ctx, "asst")
	if err != nil {
		t.Fatalf("AssistantLastActivity: %v", err)
	}
	if last != 200 {
		t.Errorf("last activity = %d, want 200", last)
	}
	if _, err := s.AssistantLastActivity(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown assistant, got %v", err)
	}

	n, err := s.DeleteConversationsBefore(ctx, 250)
	if err != nil {
		t.Fatalf("DeleteConversationsBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d conversations, want 2", n)
	}
}

func TestHealthEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []model.HealthEvent{
		model.NewHealthEvent(model.EventContainerStartup, map[string]any{"pid": 1}, "c1", 100),
		model.NewHealthEvent(model.EventServiceBusError, map[string]any{"error": "timeout"}, "c1", 200),
		model.NewHealthEvent(model.EventServiceBusError, nil, "c2", 300),
	}
	for _, ev := range events {
		if err := s.LogHealthEvent(ctx, ev); err != nil {
			t.Fatalf("LogHealthEvent: %v", err)
		}
	}

	list, err := s.ListHealthEvents(ctx, model.HealthFilter{ErrorType: model.EventServiceBusError})
	if err != nil {
		t.Fatalf("ListHealthEvents: %v", err)
	}
	if len(list) != 2 || list[0].ContainerID != "c2" {
		t.Errorf("unexpected events: %+v", list)
	}
	if list[1].Details["error"] != "timeout" {
		t.Errorf("details not round-tripped: %+v", list[1].Details)
	}

	list, _ = s.ListHealthEvents(ctx, model.HealthFilter{ContainerID: "c1", Since: 150})
	if len(list) != 1 {
		t.Errorf("got %d events since 150 for c1, want 1", len(list))
	}

	n, err := s.DeleteHealthEventsBefore(ctx, 250)
	if err != nil || n != 2 {
		t.Errorf("DeleteHealthEventsBefore = %d, %v; want 2", n, err)
	}
}

func TestAssistantPool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a1"} {
		if err := s.AddPoolAssistant(ctx, id); err != nil {
			t.Fatalf("AddPoolAssistant(%s): %v", id, err)
		}
	}
	pool, err := s.ListPoolAssistants(ctx)
	if err != nil {
		t.Fatalf("ListPoolAssistants: %v", err)
	}
	if len(pool) != 2 {
		t.Fatalf("pool size = %d, want 2", len(pool))
	}

	if err := s.RemovePoolAssistant(ctx, "a1"); err != nil {
		t.Fatalf("RemovePoolAssistant: %v", err)
	}
	if err := s.RemovePoolAssistant(ctx, "unknown"); err != nil {
		t.Errorf("removing unknown id should succeed: %v", err)
	}
	pool, _ = s.ListPoolAssistants(ctx)
	if len(pool) != 1 || pool[0].AssistantID != "a2" {
		t.Errorf("unexpected pool: %+v", pool)
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutRequest(ctx, &model.Request{RequestID: "r", Status: model.StatusPending})
	s.InsertConversation(ctx, model.Conversation{RequestID: "r", Question: "q", Answer: "a"})
	s.LogHealthEvent(ctx, model.NewHealthEvent(model.EventMetrics, nil, "", time.Now().Unix()))
	s.AddPoolAssistant(ctx, "keep")

	counts, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	for _, c := range []string{store.CollectionRequests, store.CollectionConversations, store.CollectionHealth} {
		if counts[c] != 1 {
			t.Errorf("purged %d from %s, want 1", counts[c], c)
		}
	}
	pool, _ := s.ListPoolAssistants(ctx)
	if len(pool) != 1 {
		t.Error("purge should leave the assistant pool alone")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
