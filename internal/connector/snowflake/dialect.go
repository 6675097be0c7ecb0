package snowflake

import (
	"errors"
	"strconv"

	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// Snowflake compilation error numbers.
const (
	errObjectNotFound    = 2003
	errInvalidIdentifier = 904
)

// BuildDistinct ranks the values of column by frequency.
func (c *SnowflakeConnector) BuildDistinct(view, column string, limit int) string {
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), "LIMIT "+strconv.Itoa(limit))
}

// LimitRows bounds a query with a trailing LIMIT.
func (c *SnowflakeConnector) LimitRows(stmt string, n int) string {
	return connector.AppendLimit(stmt, n, query.Snowflake)
}

// ClassifyError maps Snowflake error numbers onto error kinds.
func (c *SnowflakeConnector) ClassifyError(err error) connector.ErrorKind {
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		switch sfErr.Number {
		case errObjectNotFound:
			return connector.ErrorUnknownObject
		case errInvalidIdentifier:
			return connector.ErrorUnknownColumn
		}
	}
	return connector.ClassifyMessage(err,
		[]string{"does not exist or not authorized"},
		[]string{"invalid identifier"})
}

// SQLDialect returns the Snowflake lexical rules used by the read-only check.
func (c *SnowflakeConnector) SQLDialect() query.Dialect {
	return query.Snowflake
}
