package postgres

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// SQLSTATE codes for undefined relations and columns.
const (
	undefinedTable  = "42P01"
	undefinedColumn = "42703"
)

// BuildDistinct ranks the values of column by frequency.
func (c *PostgresConnector) BuildDistinct(view, column string, limit int) string {
	return connector.DistinctQuery(c.QuoteIdentifier(column), c.QualifiedName(view), "LIMIT "+strconv.Itoa(limit))
}

// LimitRows bounds a query with a trailing LIMIT.
func (c *PostgresConnector) LimitRows(stmt string, n int) string {
	return connector.AppendLimit(stmt, n, query.Postgres)
}

// ClassifyError maps SQLSTATE codes onto error kinds.
func (c *PostgresConnector) ClassifyError(err error) connector.ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable:
			return connector.ErrorUnknownObject
		case undefinedColumn:
			return connector.ErrorUnknownColumn
		}
		return connector.ErrorOther
	}
	return connector.ClassifyMessage(err,
		[]string{"relation", "does not exist"},
		[]string{"column"})
}

// SQLDialect returns the Postgres lexical rules used by the read-only check.
func (c *PostgresConnector) SQLDialect() query.Dialect {
	return query.Postgres
}
