package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled shares one token bucket between every chat and embedding call
// the process makes, keeping concurrent workers under the provider quota.
type Throttled struct {
	next    Client
	limiter *rate.Limiter
}

// NewThrottled wraps c so calls wait for the limiter. A non-positive rate
// disables throttling.
func NewThrottled(c Client, perSecond float64, burst int) *Throttled {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: c, limiter: rate.NewLimiter(limit, burst)}
}

// Chat waits for a token and forwards the request.
func (t *Throttled) Chat(ctx context.Context, req Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit: %w", err)
	}
	return t.next.Chat(ctx, req)
}

// Model returns the wrapped client's model.
func (t *Throttled) Model() string { return t.next.Model() }

// Embed waits for a token and forwards to the wrapped client when it can
// embed.
func (t *Throttled) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, ok := t.next.(Embedder)
	if !ok {
		return nil, ErrEmbeddingsUnsupported
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit: %w", err)
	}
	return e.Embed(ctx, texts)
}
