package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Rows is a query result rendered to text.
type Rows struct {
	Columns   []string
	Values    [][]string
	Truncated bool
}

// FetchRows runs query and reads at most max rows. Reading stops at the cap
// even when the dialect rewrite could not bound the query itself.
func FetchRows(ctx context.Context, db *sqlx.DB, query string, max int) (*Rows, error) {
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := &Rows{Columns: cols}
	for rows.Next() {
		if max > 0 && len(out.Values) >= max {
			out.Truncated = true
			break
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = FormatValue(v)
		}
		out.Values = append(out.Values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatValue renders a scanned column value for the model.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}

// Empty reports whether the result has no rows.
func (r *Rows) Empty() bool { return len(r.Values) == 0 }

// Table renders the result as a header line followed by one line per row,
// cells separated by " | ".
func (r *Rows) Table() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	b.WriteByte('\n')
	for _, row := range r.Values {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}

// ColumnNames reads the column list of a view by selecting a single row.
func ColumnNames(ctx context.Context, c Connector, view string) ([]string, error) {
	q := c.LimitRows("SELECT * FROM "+c.QualifiedName(view), 1)
	rows, err := c.DB().QueryxContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}
