package postgres

import (
	"context"
	"fmt"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// columnRow holds the result of querying information_schema.columns.
type columnRow struct {
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
	MaxLength  *int64 `db:"character_maximum_length"`
	Position   int    `db:"ordinal_position"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"table_name"`
	TableType string `db:"table_type"`
}

// GetViewNames returns every table and view in the configured schema.
func (c *PostgresConnector) GetViewNames(ctx context.Context) ([]string, error) {
	const query = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name`

	var names []string
	if err := c.Conn.SelectContext(ctx, &names, query, c.Schema); err != nil {
		return nil, fmt.Errorf("get view names: %w", err)
	}
	return names, nil
}

// IntrospectView returns the live columns of a single view or table.
func (c *PostgresConnector) IntrospectView(ctx context.Context, name string) (*model.TableSchema, error) {
	const tableQuery = `SELECT table_name, table_type FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`

	var t tableRow
	if err := c.Conn.GetContext(ctx, &t, tableQuery, c.Schema, name); err != nil {
		return nil, fmt.Errorf("view %q not found in schema %q: %w", name, c.Schema, err)
	}

	const columnQuery = `SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.character_maximum_length,
			c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

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
