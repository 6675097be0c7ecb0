package model

// TableSchema describes the live structure of a warehouse table or view.
type TableSchema struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // "table" or "view"
	Columns []Column `json:"columns"`
}

// Column describes a single column within a table or view.
type Column struct {
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Type      string `json:"db_type"`
	Nullable  bool   `json:"nullable"`
	MaxLength *int64 `json:"max_length,omitempty"`
}

// ColumnNames returns the column names in ordinal order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
