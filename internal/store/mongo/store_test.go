package mongo

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

func testConfig() Config {
	return Config{Database: "insightshq-db", RequestsCollection: store.CollectionRequests}
}

func TestGetRequest(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "insightshq-db.requests", mtest.FirstBatch, bson.D{
			{Key: "request_id", Value: "req-1"},
			{Key: "status", Value: "completed"},
			{Key: "user_email", Value: nil},
			{Key: "result", Value: bson.D{
				{Key: "status", Value: "success"},
				{Key: "response", Value: "done"},
			}},
		}))

		req, err := s.GetRequest(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("GetRequest: %v", err)
		}
		if req.Status != model.StatusCompleted || req.Result == nil || req.Result.Response != "done" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "insightshq-db.requests", mtest.FirstBatch))

		if _, err := s.GetRequest(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdateRequestStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("matched", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		err := s.UpdateRequestStatus(context.Background(), "req-1", model.StatusCompleted,
			&model.Result{Status: model.ResultSuccess, AssistantID: "a", ThreadID: "t"})
		if err != nil {
			t.Errorf("UpdateRequestStatus: %v", err)
		}
	})

	mt.Run("not matched", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		err := s.UpdateRequestStatus(context.Background(), "req-1", model.StatusError, nil)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestStatusUpdateKeepsIDsOfFailedResult(t *testing.T) {
	set := statusUpdate(model.StatusError, 100, &model.Result{Status: model.ResultError, Error: "store down"})
	if _, ok := set["assistant_id"]; ok {
		t.Error("empty assistant id must not overwrite the stored one")
	}
	if _, ok := set["thread_id"]; ok {
		t.Error("empty thread id must not overwrite the stored one")
	}
	if set["status"] != model.StatusError || set["result"] == nil {
		t.Errorf("unexpected update: %v", set)
	}

	set = statusUpdate(model.StatusCompleted, 100, &model.Result{AssistantID: "asst-1", ThreadID: "thread-1"})
	if set["assistant_id"] != "asst-1" || set["thread_id"] != "thread-1" {
		t.Errorf("ids should be copied from the result: %v", set)
	}

	if set = statusUpdate(model.StatusProcessing, 100, nil); len(set) != 2 {
		t.Errorf("status only update should set two fields: %v", set)
	}
}

func TestDeleteRequestsBefore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("counts", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		n, err := s.DeleteRequestsBefore(context.Background(), 1000)
		if err != nil {
			t.Fatalf("DeleteRequestsBefore: %v", err)
		}
		if n != 3 {
			t.Errorf("deleted %d, want 3", n)
		}
	})
}

func TestAssistantLastActivity(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("latest", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "insightshq-db.conversations", mtest.FirstBatch, bson.D{
			{Key: "updated_at", Value: int64(1700000000)},
		}))

		ts, err := s.AssistantLastActivity(context.Background(), "asst-1")
		if err != nil {
			t.Fatalf("AssistantLastActivity: %v", err)
		}
		if ts != 1700000000 {
			t.Errorf("ts = %d, want 1700000000", ts)
		}
	})

	mt.Run("none", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "insightshq-db.conversations", mtest.FirstBatch))

		if _, err := s.AssistantLastActivity(context.Background(), "asst-1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestInsertConversationsEmpty(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no-op", func(mt *mtest.T) {
		s := newStore(mt.Client, testConfig())
		if err := s.InsertConversations(context.Background(), nil); err != nil {
			t.Errorf("empty batch should not touch the server: %v", err)
		}
	})
}
