package sqlite

import (
	"strconv"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// BuildDistinct ranks the values of column by frequency.
func (c *SQLiteConnector) BuildDistinct(view, column string, limit int) string {
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), "LIMIT "+strconv.Itoa(limit))
}

// LimitRows bounds a query with a trailing LIMIT.
func (c *SQLiteConnector) LimitRows(stmt string, n int) string {
	return connector.AppendLimit(stmt, n, query.SQLite)
}

// ClassifyError inspects the message; modernc errors carry only the
// generic SQLITE_ERROR code for both cases.
func (c *SQLiteConnector) ClassifyError(err error) connector.ErrorKind {
	return connector.ClassifyMessage(err,
		[]string{"no such table", "no such view"},
		[]string{"no such column"})
}

// SQLDialect returns the SQLite lexical rules used by the read-only check.
func (c *SQLiteConnector) SQLDialect() query.Dialect {
	return query.SQLite
}
