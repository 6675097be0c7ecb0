package postgres

import (
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// PostgresConnector implements connector.Connector for PostgreSQL
// warehouses (and compatible engines such as Redshift or Synapse
// serverless over the pg wire protocol).
type PostgresConnector struct {
	connector.Pool
}

// New returns a connector reading from the public schema by default.
func New() connector.Connector {
	return &PostgresConnector{Pool: connector.Pool{Schema: "public"}}
}

// Connect opens the pool through the pgx stdlib driver.
func (c *PostgresConnector) Connect(cfg connector.ConnectionConfig) error {
	return c.Open("pgx", "postgres", cfg)
}

func (c *PostgresConnector) DriverName() string { return "postgres" }

func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// QualifiedName returns "schema"."view".
func (c *PostgresConnector) QualifiedName(view string) string {
	return connector.Qualify(c.QuoteIdentifier, c.Schema, view)
}
