package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/llm"
)

const verifySystemPrompt = `You are an SQL verification assistant.
You are given an SQL query and the schema of a database view. You focus on the syntax and semantics of the target warehouse.
Make sure the query does not return more than %d rows. If needed, rewrite it so it returns fewer rows, for example with TOP %d.
Make sure the query only reads data and does not modify it.
Reply with a single JSON object: {"correctedQuery": "<query>", "read_only": true|false}.`

// Verdict is the verifier's judgement of a query.
type Verdict struct {
	CorrectedQuery string `json:"correctedQuery"`
	ReadOnly       bool   `json:"read_only"`
}

// Verifier asks a model to review a query against the view schema before
// it runs.
type Verifier struct {
	client  llm.Client
	maxRows int
}

// NewVerifier creates a verifier capping rows at maxRows.
func NewVerifier(client llm.Client, maxRows int) *Verifier {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Verifier{client: client, maxRows: maxRows}
}

// Verify returns the model's verdict on query.
func (v *Verifier) Verify(ctx context.Context, query, schema string) (Verdict, error) {
	prompt := fmt.Sprintf("Table/View Schema:\n%s\n\nSQL Query:\n%s\n", schema, query)
	resp, err := v.client.Chat(ctx, llm.Request{
		System:      fmt.Sprintf(verifySystemPrompt, v.maxRows, v.maxRows),
		Messages:    []llm.Message{llm.UserMessage(prompt)},
		Temperature: 0,
		MaxTokens:   400,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("verify query: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("verify query: decode verdict: %w", err)
	}
	verdict.CorrectedQuery = strings.TrimSpace(verdict.CorrectedQuery)
	return verdict, nil
}

// extractJSON returns the outermost JSON object in s, dropping any prose
// or code fences the model wrapped it in.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
