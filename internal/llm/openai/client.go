// Package openai implements llm.Client on top of the OpenAI chat completions
// API, either against api.openai.com or an Azure OpenAI deployment.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/insightshq/nl2sql-processor/internal/llm"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

// Config selects the endpoint and models.
type Config struct {
	// Azure switches to Azure OpenAI. Endpoint and APIVersion are then
	// required, and Model and EmbeddingModel name deployments.
	Azure          bool
	Endpoint       string
	APIKey         string
	APIVersion     string
	Model          string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// Client talks to the chat completions and embeddings endpoints.
type Client struct {
	api            *goopenai.Client
	model          string
	embeddingModel string
}

// New builds a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	var oc goopenai.ClientConfig
	if cfg.Azure {
		if cfg.Endpoint == "" {
			return nil, errors.New("openai: azure endpoint is required")
		}
		oc = goopenai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		// Deployments are named after the model they serve.
		oc.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		oc = goopenai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			oc.BaseURL = cfg.Endpoint
		}
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		api:            goopenai.NewClientWithConfig(oc),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Model implements llm.Client.
func (c *Client) Model() string { return c.model }

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	creq := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat: response has no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Embed implements llm.Embedder.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embeddingModel == "" {
		return nil, llm.ErrEmbeddingsUnsupported
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func toMessages(req llm.Request) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		cm := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == llm.RoleTool {
			cm.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		msgs = append(msgs, cm)
	}
	return msgs
}

// IsRetryable reports whether err is worth retrying: throttling, server
// errors and transport failures are, request validation errors are not.
func IsRetryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
