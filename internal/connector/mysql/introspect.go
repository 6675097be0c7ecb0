package mysql

import (
	"context"
	"fmt"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// columnRow holds the result of querying information_schema.columns for MySQL.
type columnRow struct {
	ColumnName string `db:"COLUMN_NAME"`
	ColumnType string `db:"COLUMN_TYPE"`
	IsNullable string `db:"IS_NULLABLE"`
	MaxLength  *int64 `db:"CHARACTER_MAXIMUM_LENGTH"`
	Position   int    `db:"ORDINAL_POSITION"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
}

// GetViewNames returns every table and view in the current database.
func (c *MySQLConnector) GetViewNames(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`

	var names []string
	if err := c.Conn.SelectContext(ctx, &names, query, c.Schema); err != nil {
		return nil, fmt.Errorf("get view names: %w", err)
	}
	return names, nil
}

// IntrospectView returns the live columns of a single view or table.
func (c *MySQLConnector) IntrospectView(ctx context.Context, name string) (*model.TableSchema, error) {
	const tableQuery = `SELECT TABLE_NAME, TABLE_TYPE FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	var t tableRow
	if err := c.Conn.GetContext(ctx, &t, tableQuery, c.Schema, name); err != nil {
		return nil, fmt.Errorf("view %q not found in schema %q: %w", name, c.Schema, err)
	}

	const columnQuery = `SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			CHARACTER_MAXIMUM_LENGTH,
			ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	var rows []columnRow
	if err := c.Conn.SelectContext(ctx, &rows, columnQuery, c.Schema, name); err != nil {
		return nil, fmt.Errorf("introspect columns for %q: %w", name, err)
	}

	ts := &model.TableSchema{
		Name:    t.TableName,
		Type:    "table",
		Columns: make([]model.Column, 0, len(rows)),
	}
	if t.TableType == "VIEW" {
		ts.Type = "view"
	}
	for _, col := range rows {
		ts.Columns = append(ts.Columns, model.Column{
			Name:      col.ColumnName,
			Position:  col.Position,
			Type:      col.ColumnType,
			Nullable:  col.IsNullable == "YES",
			MaxLength: col.MaxLength,
		})
	}
	return ts, nil
}
