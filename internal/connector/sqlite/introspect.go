package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// GetViewNames returns every user table and view.
func (c *SQLiteConnector) GetViewNames(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var names []string
	if err := c.Conn.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("get view names: %w", err)
	}
	return names, nil
}

// IntrospectView returns the columns of a single view or table.
func (c *SQLiteConnector) IntrospectView(ctx context.Context, name string) (*model.TableSchema, error) {
	var kind string
	err := c.Conn.GetContext(ctx, &kind,
		`SELECT type FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}

	var info []tableInfoRow
	pragma := fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdentifier(name))
	if err := c.Conn.SelectContext(ctx, &info, pragma); err != nil {
		return nil, fmt.Errorf("introspect columns for %q: %w", name, err)
	}

	ts := &model.TableSchema{
		Name:    name,
		Type:    kind,
		Columns: make([]model.Column, 0, len(info)),
	}
	for _, col := range info {
		ts.Columns = append(ts.Columns, model.Column{
			Name:     col.Name,
			Position: col.CID + 1,
			Type:     col.Type,
			Nullable: col.NotNull == 0 && col.PK == 0,
		})
	}
	return ts, nil
}
