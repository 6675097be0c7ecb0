package tools

import "github.com/insightshq/nl2sql-processor/internal/llm"

// Definitions describes every tool to the model.
func (t *Toolbox) Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ListViews,
			Description: "List the views, datasets and example queries relevant to a question. The search is based on semantic similarity.",
			Parameters: llm.StringSchema([]string{"query_text"}, map[string]string{
				"query_text": "The text to search relevant views for. It should be self-explanatory.",
			}),
		},
		{
			Name:        GetDBSchema,
			Description: "Get the schema (columns, types, descriptions) of a view.",
			Parameters: llm.StringSchema([]string{"view_name", "datasource"}, map[string]string{
				"view_name":  "The view name to get the schema for",
				"datasource": "The datasource the view belongs to",
			}),
		},
		{
			Name:        FetchDistinctValues,
			Description: "Fetch the 50 most frequent distinct values of a column of a view, with their counts.",
			Parameters: llm.StringSchema([]string{"datasource", "view_name", "column_name"}, map[string]string{
				"datasource":  "The datasource to query",
				"view_name":   "The view to fetch distinct values from",
				"column_name": "The column to fetch distinct values of",
			}),
		},
		{
			Name:        RunSQLQuery,
			Description: "Run a read-only SQL query on a view. At most 50 rows are returned.",
			Parameters: llm.StringSchema([]string{"datasource", "view_name", "query"}, map[string]string{
				"datasource": "The datasource to run the query on",
				"view_name":  "The view the query reads from",
				"query":      "The SQL query to run",
			}),
		},
		{
			Name:        FetchSimilarQueries,
			Description: "Fetch example questions similar to the user question, with the SQL that answered them.",
			Parameters: llm.StringSchema([]string{"question"}, map[string]string{
				"question": "The user question",
			}),
		},
	}
}
