// Package anthropic implements llm.Client with the Anthropic messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/insightshq/nl2sql-processor/internal/llm"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

const defaultMaxTokens = 4096

// Config selects the model. BaseURL is only set by tests.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client sends chats to Claude models.
type Client struct {
	api   *anthropic.Client
	model string
}

// New builds a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Client{api: anthropic.NewClient(cfg.APIKey, opts...), model: cfg.Model}, nil
}

// Model implements llm.Client.
func (c *Client) Model() string { return c.model }

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature

	msgs, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	mreq := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.System,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	for _, t := range req.Tools {
		mreq.Tools = append(mreq.Tools, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	resp, err := c.api.CreateMessages(ctx, mreq)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	out := &llm.Response{
		StopReason: string(resp.StopReason),
		Usage: model.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text = append(text, *block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			args := string(block.MessageContentToolUse.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        block.MessageContentToolUse.ID,
				Name:      block.MessageContentToolUse.Name,
				Arguments: args,
			})
		}
	}
	out.Content = strings.Join(text, "\n")
	return out, nil
}

// toMessages folds the neutral history into alternating user and assistant
// turns. Consecutive tool results become one user turn of tool_result
// blocks, which is how the API expects answers to parallel tool calls.
func toMessages(in []llm.Message) ([]anthropic.Message, error) {
	var out []anthropic.Message
	appendTo := func(role anthropic.ChatRole, content anthropic.MessageContent) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, content)
			return
		}
		out = append(out, anthropic.Message{Role: role, Content: []anthropic.MessageContent{content}})
	}

	for _, m := range in {
		switch m.Role {
		case llm.RoleSystem:
			// System text travels in MessagesRequest.System.
			continue
		case llm.RoleUser:
			appendTo(anthropic.RoleUser, anthropic.NewTextMessageContent(m.Content))
		case llm.RoleTool:
			appendTo(anthropic.RoleUser, anthropic.NewToolResultMessageContent(m.ToolCallID, m.Content, false))
		case llm.RoleAssistant:
			if m.Content != "" {
				appendTo(anthropic.RoleAssistant, anthropic.NewTextMessageContent(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if len(input) == 0 || !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				appendTo(anthropic.RoleAssistant, anthropic.MessageContent{
					Type: anthropic.MessagesContentTypeToolUse,
					MessageContentToolUse: &anthropic.MessageContentToolUse{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
		default:
			return nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	return out, nil
}
