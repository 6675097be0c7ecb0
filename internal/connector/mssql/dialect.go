package mssql

import (
	"errors"
	"fmt"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// SQL Server error numbers for missing objects and columns.
const (
	errInvalidObject = 208
	errInvalidColumn = 207
)

// BuildDistinct ranks the values of column by frequency using OFFSET/FETCH.
func (c *MSSQLConnector) BuildDistinct(view, column string, limit int) string {
	tail := fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", limit)
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), tail)
}

// LimitRows bounds a SELECT with TOP n.
func (c *MSSQLConnector) LimitRows(stmt string, n int) string {
	return connector.InjectTop(stmt, n, query.TSQL)
}

// ClassifyError maps SQL Server error numbers onto error kinds, falling
// back to the message text for wrapped or driver-level errors.
func (c *MSSQLConnector) ClassifyError(err error) connector.ErrorKind {
	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case errInvalidObject:
			return connector.ErrorUnknownObject
		case errInvalidColumn:
			return connector.ErrorUnknownColumn
		}
	}
	return connector.ClassifyMessage(err,
		[]string{"invalid object name"},
		[]string{"invalid column name"})
}

// SQLDialect returns the T-SQL lexical rules used by the read-only check.
func (c *MSSQLConnector) SQLDialect() query.Dialect {
	return query.TSQL
}
