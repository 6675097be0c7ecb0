package sqlite

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			request_type TEXT NOT NULL DEFAULT '',
			user_email TEXT NOT NULL DEFAULT '',
			assistant_id TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL DEFAULT '',
			result_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_user_email ON requests(user_email)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			user_email TEXT NOT NULL DEFAULT '',
			assistant_id TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL DEFAULT '',
			report_name TEXT NOT NULL DEFAULT '',
			request_type TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations(user_email, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_assistant_updated ON conversations(assistant_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_thread ON conversations(thread_id)`,

		`CREATE TABLE IF NOT EXISTS container_health (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			error_type TEXT NOT NULL,
			details_json TEXT NOT NULL DEFAULT '{}',
			timestamp INTEGER NOT NULL,
			container_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_timestamp ON container_health(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_health_error_type ON container_health(error_type)`,

		`CREATE TABLE IF NOT EXISTS assistant_pool (
			assistant_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// v2: SQL context the agent used for the answer.
		`ALTER TABLE conversations ADD COLUMN context TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ADD COLUMN fails once the column exists; that makes reruns a no-op.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
