package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightshq/nl2sql-processor/internal/llm"
)

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Model: "claude"})
	assert.Error(t, err)
	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestToMessagesGroupsToolResults(t *testing.T) {
	msgs, err := toMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "ignored"},
		llm.UserMessage("Which vendors are overdue?"),
		{Role: llm.RoleAssistant, Content: "Looking.", ToolCalls: []llm.ToolCall{
			{ID: "t1", Name: "list_views", Arguments: `{"query_text":"vendor"}`},
			{ID: "t2", Name: "fetch_similar_queries", Arguments: ""},
		}},
		{Role: llm.RoleTool, ToolCallID: "t1", Content: "VendorAging_View"},
		{Role: llm.RoleTool, ToolCallID: "t2", Content: "none"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, anthropic.RoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	assert.Equal(t, anthropic.MessagesContentTypeToolUse, msgs[1].Content[1].Type)
	assert.Equal(t, "t1", msgs[1].Content[1].MessageContentToolUse.ID)
	assert.JSONEq(t, `{}`, string(msgs[1].Content[2].MessageContentToolUse.Input))

	assert.Equal(t, anthropic.RoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
}

func TestToMessagesRejectsUnknownRole(t *testing.T) {
	_, err := toMessages([]llm.Message{{Role: "narrator"}})
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-3-5-sonnet-latest",
			"content": []any{
				map[string]any{"type": "text", "text": "Let me check the views."},
				map[string]any{
					"type":  "tool_use",
					"id":    "toolu_1",
					"name":  "list_views",
					"input": map[string]any{"query_text": "budget"},
				},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]any{"input_tokens": 42, "output_tokens": 7},
		})
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", Model: "claude-3-5-sonnet-latest", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), llm.Request{
		System:   "You answer with SQL.",
		Messages: []llm.Message{llm.UserMessage("budget for 2024?")},
		Tools:    []llm.Tool{{Name: "list_views", Description: "Find views", Parameters: llm.StringSchema([]string{"query_text"}, nil)}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me check the views.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query_text":"budget"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 42, resp.Usage.PromptTokens)
	assert.Equal(t, 7, resp.Usage.CompletionTokens)

	assert.Equal(t, "You answer with SQL.", body["system"])
	assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
	assert.Len(t, body["tools"], 1)
}
