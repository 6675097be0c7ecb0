// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/insightshq/nl2sql-processor/internal/llm"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

// ErrScriptExhausted is returned once every scripted step has been used.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Step produces the response to one Chat call.
type Step func(req llm.Request) (*llm.Response, error)

// Client replays steps in order and records every request it sees.
type Client struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
	model    string
}

// New returns a client that answers Chat calls with steps, in order.
func New(steps ...Step) *Client {
	return &Client{steps: steps, model: "scripted"}
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.requests = append(c.requests, cloneRequest(req))
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()
	return step(req)
}

// Model implements llm.Client.
func (c *Client) Model() string { return c.model }

// Requests returns a copy of the requests received so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Remaining reports how many steps have not been consumed.
func (c *Client) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

func cloneRequest(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}

// Reply answers with plain text.
func Reply(text string) Step {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Content:    text,
			StopReason: "stop",
			Usage:      model.Usage{PromptTokens: 10, CompletionTokens: 5},
		}, nil
	}
}

// Call requests a single tool call. args is marshaled to JSON.
func Call(id, name string, args any) Step {
	return Calls(llm.ToolCall{ID: id, Name: name, Arguments: mustJSON(args)})
}

// Calls requests several tool calls in one turn.
func Calls(calls ...llm.ToolCall) Step {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{
			ToolCalls:  calls,
			StopReason: "tool_calls",
			Usage:      model.Usage{PromptTokens: 10, CompletionTokens: 5},
		}, nil
	}
}

// Fail returns err.
func Fail(err error) Step {
	return func(llm.Request) (*llm.Response, error) { return nil, err }
}

// ToolCall builds a call with JSON encoded args.
func ToolCall(id, name string, args any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: mustJSON(args)}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("llmtest: marshal args: %v", err))
	}
	return string(b)
}

// Embedder maps each text to a fixed vector chosen by fn.
type Embedder func(text string) []float32

// Embed implements llm.Embedder.
func (e Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e(t)
	}
	return out, nil
}
