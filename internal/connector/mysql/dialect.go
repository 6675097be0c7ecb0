package mysql

import (
	"errors"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// MySQL server error numbers.
const (
	errNoSuchTable  = 1146
	errBadFieldName = 1054
)

// BuildDistinct ranks the values of column by frequency.
func (c *MySQLConnector) BuildDistinct(view, column string, limit int) string {
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), "LIMIT "+strconv.Itoa(limit))
}

// LimitRows bounds a query with a trailing LIMIT.
func (c *MySQLConnector) LimitRows(stmt string, n int) string {
	return connector.AppendLimit(stmt, n, query.MySQL)
}

// ClassifyError maps MySQL error numbers onto error kinds.
func (c *MySQLConnector) ClassifyError(err error) connector.ErrorKind {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errNoSuchTable:
			return connector.ErrorUnknownObject
		case errBadFieldName:
			return connector.ErrorUnknownColumn
		}
		return connector.ErrorOther
	}
	return connector.ClassifyMessage(err,
		[]string{"doesn't exist"},
		[]string{"unknown column"})
}

// SQLDialect returns the MySQL lexical rules used by the read-only check.
func (c *MySQLConnector) SQLDialect() query.Dialect {
	return query.MySQL
}
