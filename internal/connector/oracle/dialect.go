package oracle

import (
	"fmt"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// BuildDistinct ranks the values of column by frequency.
func (c *OracleConnector) BuildDistinct(view, column string, limit int) string {
	tail := fmt.Sprintf("FETCH FIRST %d ROWS ONLY", limit)
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), tail)
}

// LimitRows bounds a query with FETCH FIRST n ROWS ONLY.
func (c *OracleConnector) LimitRows(stmt string, n int) string {
	return connector.AppendFetchFirst(stmt, n, query.Oracle)
}

// ClassifyError matches ORA codes in the driver message.
func (c *OracleConnector) ClassifyError(err error) connector.ErrorKind {
	return connector.ClassifyMessage(err,
		[]string{"ORA-00942"},
		[]string{"ORA-00904"})
}

// SQLDialect returns the Oracle lexical rules used by the read-only check.
func (c *OracleConnector) SQLDialect() query.Dialect {
	return query.Oracle
}
