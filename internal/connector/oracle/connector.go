// Package oracle connects the agent to Oracle Autonomous and on-premise
// warehouses through the pure Go go-ora driver.
package oracle

import (
	"strings"

	_ "github.com/sijms/go-ora/v2"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// OracleConnector implements connector.Connector for Oracle databases.
type OracleConnector struct {
	connector.Pool
}

// New creates a new OracleConnector. The schema defaults to the login user.
func New() connector.Connector {
	return &OracleConnector{}
}

// Connect opens an oracle:// DSN and resolves the owning schema.
func (c *OracleConnector) Connect(cfg connector.ConnectionConfig) error {
	if err := c.Open("oracle", "oracle", cfg); err != nil {
		return err
	}
	c.Schema = strings.ToUpper(c.Schema)
	if c.Schema == "" {
		var user string
		if err := c.Conn.Get(&user, "SELECT USER FROM DUAL"); err == nil {
			c.Schema = user
		}
	}
	return nil
}

func (c *OracleConnector) DriverName() string { return "oracle" }

func (c *OracleConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// QualifiedName returns "OWNER"."VIEW".
func (c *OracleConnector) QualifiedName(view string) string {
	return connector.Qualify(c.QuoteIdentifier, c.Schema, view)
}
