// Package mongo stores documents in MongoDB or Azure Cosmos DB through its
// MongoDB API.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// Config selects the database and collections.
type Config struct {
	URI                string
	Database           string
	RequestsCollection string
	ConnectTimeout     time.Duration
}

// Store implements store.Store on MongoDB.
type Store struct {
	client        *mongo.Client
	requests      *mongo.Collection
	conversations *mongo.Collection
	health        *mongo.Collection
	pool          *mongo.Collection
	now           func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects, verifies the connection, and ensures indexes exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.RequestsCollection == "" {
		cfg.RequestsCollection = store.CollectionRequests
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := newStore(client, cfg)
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, cfg Config) *Store {
	db := client.Database(cfg.Database)
	return &Store{
		client:        client,
		requests:      db.Collection(cfg.RequestsCollection),
		conversations: db.Collection(store.CollectionConversations),
		health:        db.Collection(store.CollectionHealth),
		pool:          db.Collection(store.CollectionAssistantPool),
		now:           time.Now,
	}
}

func asc(field string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
}

func unique(field string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.requests, []mongo.IndexModel{
			unique("request_id"), asc("user_email"), asc("status"), asc("created_at"), asc("request_type"),
		}},
		{s.conversations, []mongo.IndexModel{
			asc("request_id"), asc("user_email"), asc("assistant_id"), asc("thread_id"),
			asc("created_at"), asc("updated_at"), asc("conversation_id"),
			{Keys: bson.D{{Key: "user_email", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "assistant_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		}},
		{s.health, []mongo.IndexModel{
			asc("timestamp"), asc("error_type"), asc("container_id"),
		}},
		{s.pool, []mongo.IndexModel{unique("assistant_id")}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) unixNow() int64 { return s.now().Unix() }

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// PutRequest upserts the request document keyed by request_id.
func (s *Store) PutRequest(ctx context.Context, req *model.Request) error {
	now := s.unixNow()
	if req.CreatedAt == 0 {
		req.CreatedAt = now
	}
	if req.UpdatedAt == 0 {
		req.UpdatedAt = now
	}
	_, err := s.requests.UpdateOne(ctx,
		bson.M{"request_id": req.RequestID},
		bson.M{"$set": req},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put request: %w", err)
	}
	return nil
}

// UpdateRequestStatus sets status and result on an existing request.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, result *model.Result) error {
	set := statusUpdate(status, s.unixNow(), result)
	res, err := s.requests.UpdateOne(ctx, bson.M{"request_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// statusUpdate builds the $set document of a status change. The request's
// assistant and thread ids are only overwritten by non-empty result ids.
func statusUpdate(status model.RequestStatus, now int64, result *model.Result) bson.M {
	set := bson.M{"status": status, "updated_at": now}
	if result == nil {
		return set
	}
	set["result"] = result
	if result.AssistantID != "" {
		set["assistant_id"] = result.AssistantID
	}
	if result.ThreadID != "" {
		set["thread_id"] = result.ThreadID
	}
	return set
}

// GetRequest loads one request.
func (s *Store) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	var req model.Request
	err := s.requests.FindOne(ctx, bson.M{"request_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &req, nil
}

// ListUserRequests returns the newest requests of a user first.
func (s *Store) ListUserRequests(ctx context.Context, userEmail string, limit int) ([]model.Request, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(store.Limit(limit)))
	cur, err := s.requests.Find(ctx, bson.M{"user_email": userEmail}, opts)
	if err != nil {
		return nil, fmt.Errorf("list user requests: %w", err)
	}
	out := []model.Request{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode user requests: %w", err)
	}
	return out, nil
}

// DeleteRequestsBefore removes requests created before unix.
func (s *Store) DeleteRequestsBefore(ctx context.Context, unix int64) (int64, error) {
	return deleteBefore(ctx, s.requests, "created_at", unix)
}

func (s *Store) stampConversation(c *model.Conversation) {
	now := s.unixNow()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
}

// InsertConversation stores one conversation document.
func (s *Store) InsertConversation(ctx context.Context, c model.Conversation) error {
	s.stampConversation(&c)
	if _, err := s.conversations.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// InsertConversations bulk inserts a batch of conversations.
func (s *Store) InsertConversations(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(convs))
	for i := range convs {
		c := convs[i]
		s.stampConversation(&c)
		docs[i] = c
	}
	if _, err := s.conversations.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("bulk insert conversations: %w", err)
	}
	return nil
}

// ListConversations returns conversations matching the filter, newest first.
func (s *Store) ListConversations(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, error) {
	filter := bson.M{}
	if f.UserEmail != "" {
		filter["user_email"] = f.UserEmail
	}
	if f.AssistantID != "" {
		filter["assistant_id"] = f.AssistantID
	}
	if f.ThreadID != "" {
		filter["thread_id"] = f.ThreadID
	}
	if f.ConversationID != "" {
		filter["conversation_id"] = f.ConversationID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(store.Limit(f.Limit)))

	cur, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := []model.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return out, nil
}

// AssistantLastActivity returns the newest updated_at of an assistant's
// conversations.
func (s *Store) AssistantLastActivity(ctx context.Context, assistantID string) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"updated_at": 1})
	var doc struct {
		UpdatedAt int64 `bson:"updated_at"`
	}
	err := s.conversations.FindOne(ctx, bson.M{"assistant_id": assistantID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("assistant last activity: %w", err)
	}
	return doc.UpdatedAt, nil
}

// DeleteConversationsBefore removes conversations created before unix.
func (s *Store) DeleteConversationsBefore(ctx context.Context, unix int64) (int64, error) {
	return deleteBefore(ctx, s.conversations, "created_at", unix)
}

// LogHealthEvent inserts a container_health document.
func (s *Store) LogHealthEvent(ctx context.Context, ev model.HealthEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = s.unixNow()
	}
	if _, err := s.health.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("log health event: %w", err)
	}
	return nil
}

// ListHealthEvents returns events matching the filter, newest first.
func (s *Store) ListHealthEvents(ctx context.Context, f model.HealthFilter) ([]model.HealthEvent, error) {
	filter := bson.M{}
	if f.ContainerID != "" {
		filter["container_id"] = f.ContainerID
	}
	if f.ErrorType != "" {
		filter["error_type"] = f.ErrorType
	}
	if f.Since > 0 {
		filter["timestamp"] = bson.M{"$gte": f.Since}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(store.Limit(f.Limit)))

	cur, err := s.health.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list health events: %w", err)
	}
	out := []model.HealthEvent{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode health events: %w", err)
	}
	return out, nil
}

// DeleteHealthEventsBefore removes health events older than unix.
func (s *Store) DeleteHealthEventsBefore(ctx context.Context, unix int64) (int64, error) {
	return deleteBefore(ctx, s.health, "timestamp", unix)
}

// ListPoolAssistants returns every pooled session.
func (s *Store) ListPoolAssistants(ctx context.Context) ([]model.PoolAssistant, error) {
	cur, err := s.pool.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list pool assistants: %w", err)
	}
	out := []model.PoolAssistant{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pool assistants: %w", err)
	}
	return out, nil
}

// AddPoolAssistant upserts a pool entry.
func (s *Store) AddPoolAssistant(ctx context.Context, assistantID string) error {
	now := s.unixNow()
	_, err := s.pool.UpdateOne(ctx,
		bson.M{"assistant_id": assistantID},
		bson.M{
			"$set":         bson.M{"assistant_id": assistantID, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("add pool assistant: %w", err)
	}
	return nil
}

// RemovePoolAssistant deletes a pool entry.
func (s *Store) RemovePoolAssistant(ctx context.Context, assistantID string) error {
	if _, err := s.pool.DeleteOne(ctx, bson.M{"assistant_id": assistantID}); err != nil {
		return fmt.Errorf("remove pool assistant: %w", err)
	}
	return nil
}

// Purge empties requests, conversations and health events.
func (s *Store) Purge(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for _, coll := range []*mongo.Collection{s.requests, s.conversations, s.health} {
		res, err := coll.DeleteMany(ctx, bson.M{})
		if err != nil {
			return counts, fmt.Errorf("purge %s: %w", coll.Name(), err)
		}
		counts[coll.Name()] = res.DeletedCount
	}
	return counts, nil
}

func deleteBefore(ctx context.Context, coll *mongo.Collection, field string, unix int64) (int64, error) {
	res, err := coll.DeleteMany(ctx, bson.M{field: bson.M{"$lt": unix}})
	if err != nil {
		return 0, fmt.Errorf("delete old %s: %w", coll.Name(), err)
	}
	return res.DeletedCount, nil
}
