package mssql

import (
	"context"
	"fmt"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// columnRow holds the result of querying information_schema.columns for SQL Server.
type columnRow struct {
	ColumnName string `db:"COLUMN_NAME"`
	DataType   string `db:"DATA_TYPE"`
	IsNullable string `db:"IS_NULLABLE"`
	MaxLength  *int64 `db:"CHARACTER_MAXIMUM_LENGTH"`
	Position   int    `db:"ORDINAL_POSITION"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
}

// GetViewNames returns every table and view in the configured schema.
func (c *MSSQLConnector) GetViewNames(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME`

	var names []string
	if err := c.Conn.SelectContext(ctx, &names, query, c.Schema); err != nil {
		return nil, fmt.Errorf("get view names: %w", err)
	}
	return names, nil
}

// IntrospectView returns the live columns of a single view or table.
func (c *MSSQLConnector) IntrospectView(ctx context.Context, name string) (*model.TableSchema, error) {
	const tableQuery = `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

	var t tableRow
	if err := c.Conn.GetContext(ctx, &t, tableQuery, c.Schema, name); err != nil {
		return nil, fmt.Errorf("view %q not found in schema %q: %w", name, c.Schema, err)
	}

	const columnQuery = `SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION`

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
			Type:      col.DataType,
			Nullable:  col.IsNullable == "YES",
			MaxLength: col.MaxLength,
		})
	}
	return ts, nil
}
