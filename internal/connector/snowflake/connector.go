package snowflake

import (
	"fmt"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// SnowflakeConnector implements connector.Connector for Snowflake
// warehouses.
type SnowflakeConnector struct {
	connector.Pool
}

// New returns a connector reading from PUBLIC unless configured otherwise.
func New() connector.Connector {
	return &SnowflakeConnector{Pool: connector.Pool{Schema: "PUBLIC"}}
}

// Connect opens the pool. With PrivateKeyPath set the DSN is rewritten for
// key pair (JWT) authentication and any password in it is ignored.
func (c *SnowflakeConnector) Connect(cfg connector.ConnectionConfig) error {
	if cfg.PrivateKeyPath != "" {
		dsn, err := buildJWTDSN(cfg.DSN, cfg.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("snowflake key pair auth: %w", err)
		}
		cfg.DSN = dsn
	}
	return c.Open("snowflake", "snowflake", cfg)
}

func (c *SnowflakeConnector) DriverName() string { return "snowflake" }

// QuoteIdentifier double-quotes name. Quoted Snowflake identifiers are
// case-sensitive, so catalog names must match the stored case.
func (c *SnowflakeConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// QualifiedName returns "SCHEMA"."VIEW".
func (c *SnowflakeConnector) QualifiedName(view string) string {
	return connector.Qualify(c.QuoteIdentifier, c.Schema, view)
}
