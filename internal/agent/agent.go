// Package agent runs the NL2SQL reasoning loop: the model is given the
// question, the recent turns of the thread and the tool definitions, and
// every tool call it makes is executed and fed back until it answers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/insightshq/nl2sql-processor/internal/llm"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/tools"
)

// ErrToolRounds is returned when the model keeps calling tools past
// Config.MaxToolRounds.
var ErrToolRounds = errors.New("agent: too many tool rounds without an answer")

// NoAnswer replaces an empty final reply.
const NoAnswer = "No answer was generated"

// Toolbox executes tool calls. *tools.Toolbox implements it.
type Toolbox interface {
	Definitions() []llm.Tool
	Call(ctx context.Context, call llm.ToolCall) string
}

// Turn is one earlier question and answer of a thread.
type Turn struct {
	Question string
	Answer   string
}

// History returns the most recent turns of a thread, oldest first.
type History interface {
	RecentTurns(ctx context.Context, threadID string, n int) ([]Turn, error)
}

// Config tunes the loop.
type Config struct {
	Temperature   float32
	MaxTokens     int
	MaxToolRounds int
	MaxRetries    int
	RetryDelay    time.Duration
	HistoryTurns  int
	// Retryable decides whether a provider error is retried. Nil retries
	// every error except context cancellation.
	Retryable func(error) bool
}

// DefaultConfig matches the processor defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.01,
		MaxTokens:     4096,
		MaxToolRounds: 12,
		MaxRetries:    5,
		RetryDelay:    20 * time.Second,
		HistoryTurns:  3,
	}
}

// Answer is the outcome of one question.
type Answer struct {
	Text string
	// Context is the last SQL query the model ran, or the name of the last
	// tool it called.
	Context   string
	Usage     model.Usage
	ToolCalls int
}

// Agent answers questions with a chat model and a toolbox.
type Agent struct {
	client  llm.Client
	toolbox Toolbox
	history History
	system  string
	cfg     Config
	logger  *slog.Logger
}

// New creates an Agent. history may be nil.
func New(client llm.Client, toolbox Toolbox, history History, system string, cfg Config, logger *slog.Logger) *Agent {
	def := DefaultConfig()
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = def.MaxToolRounds
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:  client,
		toolbox: toolbox,
		history: history,
		system:  system,
		cfg:     cfg,
		logger:  logger,
	}
}

// Ask answers question within thread threadID.
func (a *Agent) Ask(ctx context.Context, threadID, question string) (*Answer, error) {
	msgs := a.historyMessages(ctx, threadID)
	msgs = append(msgs, llm.UserMessage(question))

	defs := a.toolbox.Definitions()
	ans := &Answer{}
	var last *llm.ToolCall

	for round := 0; round < a.cfg.MaxToolRounds; round++ {
		resp, err := a.chat(ctx, llm.Request{
			System:      a.system,
			Messages:    msgs,
			Tools:       defs,
			Temperature: a.cfg.Temperature,
			MaxTokens:   a.cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		ans.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			ans.Text = resp.Content
			if ans.Text == "" {
				ans.Text = NoAnswer
			}
			ans.Context = contextOf(last)
			return ans, nil
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for i := range resp.ToolCalls {
			call := resp.ToolCalls[i]
			out := a.toolbox.Call(ctx, call)
			msgs = append(msgs, llm.ToolResult(call, out))
			last = &call
			ans.ToolCalls++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (%d rounds)", ErrToolRounds, a.cfg.MaxToolRounds)
}

// chat calls the model, retrying failures with a fixed delay.
func (a *Agent) chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var resp *llm.Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := a.client.Chat(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		if !a.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("model call failed, retrying",
			"attempt", attempt, "max_attempts", a.cfg.MaxRetries, "wait", wait, "error", err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.cfg.RetryDelay), uint64(a.cfg.MaxRetries-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("failed to get a response after %d attempts: %w", attempt, err)
	}
	return resp, nil
}

func (a *Agent) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if a.cfg.Retryable != nil {
		return a.cfg.Retryable(err)
	}
	return true
}

func (a *Agent) historyMessages(ctx context.Context, threadID string) []llm.Message {
	if a.history == nil || threadID == "" || a.cfg.HistoryTurns <= 0 {
		return nil
	}
	turns, err := a.history.RecentTurns(ctx, threadID, a.cfg.HistoryTurns)
	if err != nil {
		a.logger.Warn("could not load thread history", "thread_id", threadID, "error", err)
		return nil
	}
	msgs := make([]llm.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.UserMessage(t.Question), llm.AssistantMessage(t.Answer))
	}
	return msgs
}

func contextOf(call *llm.ToolCall) string {
	if call == nil {
		return ""
	}
	if call.Name == tools.RunSQLQuery {
		var args struct {
			Query string `json:"query"`
		}
		if err := call.Decode(&args); err == nil {
			return args.Query
		}
	}
	return call.Name
}
