package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

type columnRow struct {
	ColumnName string `db:"COLUMN_NAME"`
	DataType   string `db:"DATA_TYPE"`
	Nullable   string `db:"NULLABLE"`
	MaxLength  *int64 `db:"CHAR_LENGTH"`
	Position   int    `db:"COLUMN_ID"`
}

type objectRow struct {
	Name string `db:"OBJECT_NAME"`
	Type string `db:"OBJECT_TYPE"`
}

// GetViewNames returns the tables and views owned by the schema.
func (c *OracleConnector) GetViewNames(ctx context.Context) ([]string, error) {
	const query = `SELECT OBJECT_NAME FROM ALL_OBJECTS
		WHERE OWNER = :1 AND OBJECT_TYPE IN ('TABLE', 'VIEW')
		ORDER BY OBJECT_NAME`

	var names []string
	if err := c.Conn.SelectContext(ctx, &names, query, c.Schema); err != nil {
		return nil, fmt.Errorf("get view names: %w", err)
	}
	return names, nil
}

// IntrospectView returns the live columns of a single view or table.
func (c *OracleConnector) IntrospectView(ctx context.Context, name string) (*model.TableSchema, error) {
	const objectQuery = `SELECT OBJECT_NAME, OBJECT_TYPE FROM ALL_OBJECTS
		WHERE OWNER = :1 AND OBJECT_NAME = :2 AND OBJECT_TYPE IN ('TABLE', 'VIEW')`

	var obj objectRow
	if err := c.Conn.GetContext(ctx, &obj, objectQuery, c.Schema, strings.ToUpper(name)); err != nil {
		return nil, fmt.Errorf("view %q not found in schema %q: %w", name, c.Schema, err)
	}

	const columnQuery = `SELECT COLUMN_NAME, DATA_TYPE, NULLABLE, CHAR_LENGTH, COLUMN_ID
		FROM ALL_TAB_COLUMNS
		WHERE OWNER = :1 AND TABLE_NAME = :2
		ORDER BY COLUMN_ID`

	var rows []columnRow
	if err := c.Conn.SelectContext(ctx, &rows, columnQuery, c.Schema, obj.Name); err != nil {
		return nil, fmt.Errorf("introspect columns for %q: %w", name, err)
	}

	ts := &model.TableSchema{
		Name:    obj.Name,
		Type:    strings.ToLower(obj.Type),
		Columns: make([]model.Column, 0, len(rows)),
	}
	for _, col := range rows {
		ts.Columns = append(ts.Columns, model.Column{
			Name:      col.ColumnName,
			Position:  col.Position,
			Type:      col.DataType,
			Nullable:  col.Nullable == "Y",
			MaxLength: col.MaxLength,
		})
	}
	return ts, nil
}
