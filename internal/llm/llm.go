// Package llm defines the provider neutral chat-with-tools contract the
// agent talks to. Providers live in subpackages.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// ErrEmbeddingsUnsupported is returned by clients that cannot embed text.
var ErrEmbeddingsUnsupported = errors.New("llm: provider does not support embeddings")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model. Arguments is
// the raw JSON object the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Decode unmarshals the call arguments into v. An empty argument string is
// treated as an empty object.
func (c ToolCall) Decode(v any) error {
	if c.Arguments == "" {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal([]byte(c.Arguments), v)
}

// Message is one entry of a conversation. Tool results carry ToolCallID;
// assistant turns that request tools carry ToolCalls.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// UserMessage is shorthand for a user turn.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage is shorthand for a plain assistant turn.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ToolResult answers one tool call.
func ToolResult(call ToolCall, output string) Message {
	return Message{Role: RoleTool, Content: output, ToolCallID: call.ID, Name: call.Name}
}

// Tool describes a function the model may call. Parameters is a JSON
// schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single chat completion call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float32
	MaxTokens   int
}

// Response is the model's reply. A response with tool calls expects the
// results to be sent back before a final answer is produced.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      model.Usage
}

// Client is a chat model.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	// Model names the model requests are sent to.
	Model() string
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StringSchema builds a JSON schema for an object whose properties are all
// required strings. descriptions maps property name to its description;
// order fixes the property order of the required list.
func StringSchema(order []string, descriptions map[string]string) map[string]any {
	props := make(map[string]any, len(order))
	for _, name := range order {
		props[name] = map[string]any{
			"type":        "string",
			"description": descriptions[name],
		}
	}
	required := make([]string, len(order))
	copy(required, order)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
