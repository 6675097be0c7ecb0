package model

// ViewDoc is the documented shape of a warehouse view, as curated in the
// catalog directory. It is what the agent sees when it asks for a schema.
type ViewDoc struct {
	Table       string      `json:"table"`
	Description string      `json:"description"`
	Datasource  string      `json:"datasource"`
	Columns     []ColumnDoc `json:"columns"`
}

// ColumnDoc documents one column of a view.
type ColumnDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ExampleQuery pairs a business question with the SQL that answers it.
type ExampleQuery struct {
	Datasource string `json:"datasource"`
	Question   string `json:"question"`
	Query      string `json:"query"`
	Reasoning  string `json:"reasoning"`
}
