package catalog

import (
	"fmt"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// NoRelevantViews is returned by list_views when the catalog is empty.
const NoRelevantViews = "No relevant tables found."

// FormatSchema renders a view document the way the get_db_schema tool
// returns it.
func FormatSchema(v model.ViewDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table Name: %s\n", v.Table)
	fmt.Fprintf(&b, "Description: %s\n", v.Description)
	fmt.Fprintf(&b, "Datasource: %s\n\nColumns:\n", v.Datasource)
	for _, col := range v.Columns {
		name := orDefault(col.Name, "Unknown")
		desc := orDefault(col.Description, "No description available.")
		typ := orDefault(col.Type, "Unknown type")
		fmt.Fprintf(&b, "- %s (%s): %s\n", name, typ, desc)
	}
	return b.String()
}

// FormatViews renders search results the way the list_views tool returns
// them: views first, then example queries.
func FormatViews(res SearchResult) string {
	if len(res.Views) == 0 {
		return NoRelevantViews
	}
	views := make([]string, len(res.Views))
	for i, v := range res.Views {
		views[i] = fmt.Sprintf("Table: %s\nDatasource:%s\nDescription: %s\n", v.Table, v.Datasource, v.Description)
	}
	examples := make([]string, len(res.Examples))
	for i, e := range res.Examples {
		examples[i] = fmt.Sprintf("Question: %s\nQuery: %s\nReasoning: %s\n", e.Question, e.Query, e.Reasoning)
	}
	return strings.Join(views, "\n\n") + "\nQueries Examples:\n" + strings.Join(examples, "\n\n")
}

// FormatSimilar renders example pairs for the fetch_similar_queries tool.
func FormatSimilar(examples []model.ExampleQuery) string {
	if len(examples) == 0 {
		return "No similar queries found."
	}
	parts := make([]string, len(examples))
	for i, e := range examples {
		parts[i] = fmt.Sprintf("User Question: %s\n\n Query: %s", e.Question, e.Query)
	}
	return "Examples of similar User Questions with their corresponding SQL queries:\n" + strings.Join(parts, "\n\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// FromLive documents a view that is missing from the catalog with the
// column names and types read from the warehouse.
func FromLive(datasource string, live model.TableSchema) model.ViewDoc {
	doc := model.ViewDoc{
		Table:       live.Name,
		Description: "Not documented in the catalog; columns read from the warehouse.",
		Datasource:  datasource,
		Columns:     make([]model.ColumnDoc, len(live.Columns)),
	}
	for i, c := range live.Columns {
		doc.Columns[i] = model.ColumnDoc{Name: c.Name, Type: c.Type}
	}
	return doc
}
