package mssql

import (
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/azuread"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

// MSSQLConnector implements connector.Connector for SQL Server and Fabric
// warehouse SQL endpoints.
type MSSQLConnector struct {
	connector.Pool
}

// New returns a connector reading from the dbo schema unless configured
// otherwise.
func New() connector.Connector {
	return &MSSQLConnector{Pool: connector.Pool{Schema: "dbo"}}
}

// Connect opens the pool. Service principal datasources go through the
// azuread driver, which honors the fedauth DSN parameters.
func (c *MSSQLConnector) Connect(cfg connector.ConnectionConfig) error {
	driver := "sqlserver"
	if cfg.AzureAD {
		driver = azuread.DriverName
	}
	return c.Open(driver, "mssql", cfg)
}

func (c *MSSQLConnector) DriverName() string { return "mssql" }

// QuoteIdentifier brackets name, doubling any closing bracket.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QualifiedName returns [schema].[view].
func (c *MSSQLConnector) QualifiedName(view string) string {
	return connector.Qualify(c.QuoteIdentifier, c.Schema, view)
}
