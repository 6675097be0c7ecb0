package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite files. It backs
// local sample datasets and the test suites.
type SQLiteConnector struct {
	connector.Pool
}

func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens the file named by the DSN, or ":memory:". An in-memory
// database lives in a single connection, so its pool is pinned to one
// connection that never expires.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	memory := strings.Contains(cfg.DSN, ":memory:")
	if memory {
		cfg.MaxOpenConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}
	cfg.SchemaName = ""
	return c.Open("sqlite", "sqlite", cfg)
}

func (c *SQLiteConnector) DriverName() string { return "sqlite" }

func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// QualifiedName returns the quoted view name; attached databases are not
// used as schemas.
func (c *SQLiteConnector) QualifiedName(view string) string {
	return c.QuoteIdentifier(view)
}
