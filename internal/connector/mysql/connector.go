package mysql

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// MySQLConnector implements connector.Connector for MySQL and MariaDB.
type MySQLConnector struct {
	connector.Pool
}

// New returns a connector whose schema is the DSN's database unless one is
// configured.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect opens the pool and, without a configured schema, reads views
// from the database named in the DSN.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	if err := c.Open("mysql", "mysql", cfg); err != nil {
		return err
	}
	if c.Schema == "" {
		var dbName string
		if err := c.Conn.Get(&dbName, "SELECT DATABASE()"); err == nil && dbName != "" {
			c.Schema = dbName
		}
	}
	return nil
}

func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifier wraps name in backticks, doubling embedded backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QualifiedName returns `schema`.`view`.
func (c *MySQLConnector) QualifiedName(view string) string {
	return connector.Qualify(c.QuoteIdentifier, c.Schema, view)
}
