// Package sqlite is a single-file store backend for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore opens (and migrates) the database at path. Pass an empty string
// for an in-memory database.
func NewStore(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) unixNow() int64 { return s.now().Unix() }

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

type requestRow struct {
	RequestID   string         `db:"request_id"`
	Status      string         `db:"status"`
	RequestType string         `db:"request_type"`
	UserEmail   string         `db:"user_email"`
	AssistantID string         `db:"assistant_id"`
	ThreadID    string         `db:"thread_id"`
	ResultJSON  sql.NullString `db:"result_json"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

func requestRowFromModel(r *model.Request) (requestRow, error) {
	row := requestRow{
		RequestID:   r.RequestID,
		Status:      string(r.Status),
		RequestType: r.RequestType,
		UserEmail:   r.UserEmail,
		AssistantID: r.AssistantID,
		ThreadID:    r.ThreadID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Result != nil {
		b, err := json.Marshal(r.Result)
		if err != nil {
			return row, fmt.Errorf("marshal result: %w", err)
		}
		row.ResultJSON = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func (r requestRow) toModel() (model.Request, error) {
	req := model.Request{
		RequestID:   r.RequestID,
		Status:      model.RequestStatus(r.Status),
		RequestType: r.RequestType,
		UserEmail:   r.UserEmail,
		AssistantID: r.AssistantID,
		ThreadID:    r.ThreadID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ResultJSON.Valid && r.ResultJSON.String != "" {
		var res model.Result
		if err := json.Unmarshal([]byte(r.ResultJSON.String), &res); err != nil {
			return req, fmt.Errorf("unmarshal result of %s: %w", r.RequestID, err)
		}
		req.Result = &res
	}
	return req, nil
}

// PutRequest inserts the request or replaces an existing one with the same
// request id. Zero timestamps are set to now.
func (s *Store) PutRequest(ctx context.Context, req *model.Request) error {
	now := s.unixNow()
	if req.CreatedAt == 0 {
		req.CreatedAt = now
	}
	if req.UpdatedAt == 0 {
		req.UpdatedAt = now
	}
	row, err := requestRowFromModel(req)
	if err != nil {
		return err
	}

	const q = `INSERT INTO requests
		(request_id, status, request_type, user_email, assistant_id, thread_id, result_json, created_at, updated_at)
		VALUES
		(:request_id, :status, :request_type, :user_email, :assistant_id, :thread_id, :result_json, :created_at, :updated_at)
		ON CONFLICT(request_id) DO UPDATE SET
			status = excluded.status,
			request_type = excluded.request_type,
			user_email = excluded.user_email,
			assistant_id = excluded.assistant_id,
			thread_id = excluded.thread_id,
			result_json = excluded.result_json,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("put request: %w", err)
	}
	return nil
}

// UpdateRequestStatus changes the status and result of an existing request.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, result *model.Result) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(status), s.unixNow()}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		sets = append(sets, "result_json = ?")
		args = append(args, string(b))
		if result.AssistantID != "" {
			sets = append(sets, "assistant_id = ?")
			args = append(args, result.AssistantID)
		}
		if result.ThreadID != "" {
			sets = append(sets, "thread_id = ?")
			args = append(args, result.ThreadID)
		}
	}
	args = append(args, id)

	q := "UPDATE requests SET " + strings.Join(sets, ", ") + " WHERE request_id = ?"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request status rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRequest returns a request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	var row requestRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM requests WHERE request_id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	req, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListUserRequests returns a user's requests, newest first.
func (s *Store) ListUserRequests(ctx context.Context, userEmail string, limit int) ([]model.Request, error) {
	var rows []requestRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM requests WHERE user_email = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		userEmail, store.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list user requests: %w", err)
	}

	out := make([]model.Request, 0, len(rows))
	for _, r := range rows {
		req, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// DeleteRequestsBefore removes requests created before the unix timestamp.
func (s *Store) DeleteRequestsBefore(ctx context.Context, unix int64) (int64, error) {
	return s.deleteBefore(ctx, "requests", "created_at", unix)
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

type conversationRow struct {
	ID             int64  `db:"id"`
	RequestID      string `db:"request_id"`
	Question       string `db:"question"`
	Answer         string `db:"answer"`
	UserEmail      string `db:"user_email"`
	AssistantID    string `db:"assistant_id"`
	ThreadID       string `db:"thread_id"`
	ReportName     string `db:"report_name"`
	RequestType    string `db:"request_type"`
	ConversationID string `db:"conversation_id"`
	Context        string `db:"context"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

func (s *Store) conversationRowFromModel(c model.Conversation) conversationRow {
	now := s.unixNow()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
	return conversationRow{
		RequestID:      c.RequestID,
		Question:       c.Question,
		Answer:         c.Answer,
		UserEmail:      c.UserEmail,
		AssistantID:    c.AssistantID,
		ThreadID:       c.ThreadID,
		ReportName:     c.ReportName,
		RequestType:    c.RequestType,
		ConversationID: c.ConversationID,
		Context:        c.Context,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (r conversationRow) toModel() model.Conversation {
	return model.Conversation{
		RequestID:      r.RequestID,
		Question:       r.Question,
		Answer:         r.Answer,
		UserEmail:      r.UserEmail,
		AssistantID:    r.AssistantID,
		ThreadID:       r.ThreadID,
		ReportName:     r.ReportName,
		RequestType:    r.RequestType,
		ConversationID: r.ConversationID,
		Context:        r.Context,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const insertConversation = `INSERT INTO conversations
	(request_id, question, answer, user_email, assistant_id, thread_id, report_name,
	 request_type, conversation_id, context, created_at, updated_at)
	VALUES
	(:request_id, :question, :answer, :user_email, :assistant_id, :thread_id, :report_name,
	 :request_type, :conversation_id, :context, :created_at, :updated_at)`

// InsertConversation stores one answered question.
func (s *Store) InsertConversation(ctx context.Context, c model.Conversation) error {
	if _, err := s.db.NamedExecContext(ctx, insertConversation, s.conversationRowFromModel(c)); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// InsertConversations stores a batch atomically.
func (s *Store) InsertConversations(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range convs {
		if _, err := tx.NamedExecContext(ctx, insertConversation, s.conversationRowFromModel(c)); err != nil {
			return fmt.Errorf("bulk insert conversations: %w", err)
		}
	}
	return tx.Commit()
}

// ListConversations returns conversations matching the filter, newest first.
func (s *Store) ListConversations(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val != "" {
			where = append(where, col+" = ?")
			args = append(args, val)
		}
	}
	add("user_email", f.UserEmail)
	add("assistant_id", f.AssistantID)
	add("thread_id", f.ThreadID)
	add("conversation_id", f.ConversationID)

	q := "SELECT * FROM conversations"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, store.Limit(f.Limit))

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.Conversation, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// AssistantLastActivity returns the newest conversation update of an
// assistant.
func (s *Store) AssistantLastActivity(ctx context.Context, assistantID string) (int64, error) {
	var last sql.NullInt64
	err := s.db.GetContext(ctx, &last,
		"SELECT MAX(updated_at) FROM conversations WHERE assistant_id = ?", assistantID)
	if err != nil {
		return 0, fmt.Errorf("assistant last activity: %w", err)
	}
	if !last.Valid {
		return 0, store.ErrNotFound
	}
	return last.Int64, nil
}

// DeleteConversationsBefore removes conversations created before unix.
func (s *Store) DeleteConversationsBefore(ctx context.Context, unix int64) (int64, error) {
	return s.deleteBefore(ctx, "conversations", "created_at", unix)
}

// ---------------------------------------------------------------------------
// Health events
// ---------------------------------------------------------------------------

type healthRow struct {
	ID          int64  `db:"id"`
	Type        string `db:"type"`
	ErrorType   string `db:"error_type"`
	DetailsJSON string `db:"details_json"`
	Timestamp   int64  `db:"timestamp"`
	ContainerID string `db:"container_id"`
}

// LogHealthEvent appends a container health event.
func (s *Store) LogHealthEvent(ctx context.Context, ev model.HealthEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal health details: %w", err)
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = s.unixNow()
	}
	row := healthRow{
		Type:        ev.Type,
		ErrorType:   string(ev.ErrorType),
		DetailsJSON: string(details),
		Timestamp:   ev.Timestamp,
		ContainerID: ev.ContainerID,
	}
	const q = `INSERT INTO container_health (type, error_type, details_json, timestamp, container_id)
		VALUES (:type, :error_type, :details_json, :timestamp, :container_id)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("log health event: %w", err)
	}
	return nil
}

// ListHealthEvents returns events matching the filter, newest first.
func (s *Store) ListHealthEvents(ctx context.Context, f model.HealthFilter) ([]model.HealthEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.ContainerID != "" {
		where = append(where, "container_id = ?")
		args = append(args, f.ContainerID)
	}
	if f.ErrorType != "" {
		where = append(where, "error_type = ?")
		args = append(args, string(f.ErrorType))
	}
	if f.Since > 0 {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since)
	}

	q := "SELECT * FROM container_health"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, store.Limit(f.Limit))

	var rows []healthRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list health events: %w", err)
	}

	out := make([]model.HealthEvent, 0, len(rows))
	for _, r := range rows {
		ev := model.HealthEvent{
			Type:        r.Type,
			ErrorType:   model.HealthEventType(r.ErrorType),
			Timestamp:   r.Timestamp,
			ContainerID: r.ContainerID,
		}
		if err := json.Unmarshal([]byte(r.DetailsJSON), &ev.Details); err != nil {
			return nil, fmt.Errorf("unmarshal health details: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// DeleteHealthEventsBefore removes health events older than unix.
func (s *Store) DeleteHealthEventsBefore(ctx context.Context, unix int64) (int64, error) {
	return s.deleteBefore(ctx, "container_health", "timestamp", unix)
}

// ---------------------------------------------------------------------------
// Assistant pool
// ---------------------------------------------------------------------------

// ListPoolAssistants returns every registered session.
func (s *Store) ListPoolAssistants(ctx context.Context) ([]model.PoolAssistant, error) {
	var out []model.PoolAssistant
	if err := s.db.SelectContext(ctx, &out, "SELECT * FROM assistant_pool ORDER BY created_at"); err != nil {
		return nil, fmt.Errorf("list pool assistants: %w", err)
	}
	return out, nil
}

// AddPoolAssistant registers a session, refreshing it when already present.
func (s *Store) AddPoolAssistant(ctx context.Context, assistantID string) error {
	now := s.unixNow()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assistant_pool (assistant_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(assistant_id) DO UPDATE SET updated_at = excluded.updated_at`,
		assistantID, now, now)
	if err != nil {
		return fmt.Errorf("add pool assistant: %w", err)
	}
	return nil
}

// RemovePoolAssistant unregisters a session. Removing an unknown id is not
// an error.
func (s *Store) RemovePoolAssistant(ctx context.Context, assistantID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM assistant_pool WHERE assistant_id = ?", assistantID); err != nil {
		return fmt.Errorf("remove pool assistant: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

// Purge empties requests, conversations and health events.
func (s *Store) Purge(ctx context.Context) (map[string]int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	counts := make(map[string]int64, 3)
	for _, table := range []string{store.CollectionRequests, store.CollectionConversations, store.CollectionHealth} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return nil, fmt.Errorf("purge %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("purge %s rows affected: %w", table, err)
		}
		counts[table] = n
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purge: %w", err)
	}
	return counts, nil
}

func (s *Store) deleteBefore(ctx context.Context, table, column string, unix int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+column+" < ?", unix)
	if err != nil {
		return 0, fmt.Errorf("delete old %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old %s rows affected: %w", table, err)
	}
	return n, nil
}
