// Package processor drains the request queue: it answers each question with
// the NL2SQL agent, records the outcome, and watches its own health so the
// container can be restarted when the queue or the store stop responding.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/queue"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// ErrRestartRequired is returned by Run when the processor gave up on its
// dependencies. The caller is expected to exit non-zero so the container
// is replaced.
var ErrRestartRequired = errors.New("processor: restart required")

// Answerer answers one question within a thread. *agent.Agent implements it.
type Answerer interface {
	Ask(ctx context.Context, threadID, question string) (*agent.Answer, error)
}

// Config tunes the processor.
type Config struct {
	ContainerID       string
	MaxWorkers        int
	MaxMessageCount   int
	MaxWaitTime       time.Duration
	LockRenewInterval time.Duration
	IdleSleep         time.Duration

	RequestTimeout     time.Duration
	SessionIdleTimeout time.Duration
	BatchSize          int

	HealthCheckInterval    time.Duration
	NoMessageTimeout       time.Duration
	StuckWarnAfter         time.Duration
	StuckAlertAfter        time.Duration
	MaxConnectionErrors    int
	MaxBatchErrors         int
	ConnectionErrorBackoff time.Duration
	BatchErrorBackoff      time.Duration

	CleanupInterval           time.Duration
	RequestRetentionDays      int
	ConversationRetentionDays int
	HealthRetentionDays       int
}

// DefaultConfig returns the settings the processor has always run with.
func DefaultConfig() Config {
	return Config{
		ContainerID:               model.DefaultContainerID,
		MaxWorkers:                10,
		MaxMessageCount:           10,
		MaxWaitTime:               5 * time.Second,
		LockRenewInterval:         30 * time.Second,
		IdleSleep:                 time.Second,
		RequestTimeout:            2 * time.Minute,
		SessionIdleTimeout:        time.Hour,
		BatchSize:                 DefaultBatchSize,
		HealthCheckInterval:       5 * time.Minute,
		NoMessageTimeout:          30 * time.Minute,
		StuckWarnAfter:            5 * time.Minute,
		StuckAlertAfter:           10 * time.Minute,
		MaxConnectionErrors:       10,
		MaxBatchErrors:            20,
		ConnectionErrorBackoff:    10 * time.Second,
		BatchErrorBackoff:         5 * time.Second,
		CleanupInterval:           time.Hour,
		RequestRetentionDays:      7,
		ConversationRetentionDays: 30,
		HealthRetentionDays:       7,
	}
}

// ConfigFrom maps the loaded configuration onto processor settings.
func ConfigFrom(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.ContainerID = c.ContainerID
	cfg.MaxWorkers = c.Worker.MaxWorkers
	cfg.MaxMessageCount = c.Queue.MaxMessageCount
	cfg.MaxWaitTime = c.Queue.MaxWaitTime
	cfg.LockRenewInterval = c.Queue.LockRenewInterval
	cfg.RequestTimeout = c.Worker.RequestTimeout
	cfg.SessionIdleTimeout = c.Worker.SessionIdleTimeout
	cfg.BatchSize = c.Worker.ConversationBatchSize
	cfg.HealthCheckInterval = c.Health.CheckInterval
	cfg.NoMessageTimeout = c.Health.NoMessageTimeout
	cfg.StuckWarnAfter = c.Health.StuckWarnAfter
	cfg.StuckAlertAfter = c.Health.StuckAlertAfter
	cfg.MaxConnectionErrors = c.Health.MaxConnectionErrors
	cfg.MaxBatchErrors = c.Health.MaxBatchErrors
	cfg.ConnectionErrorBackoff = c.Health.ConnectionErrorBackoff
	cfg.BatchErrorBackoff = c.Health.BatchErrorBackoff
	cfg.CleanupInterval = time.Duration(c.Cleanup.IntervalHours) * time.Hour
	cfg.RequestRetentionDays = c.Cleanup.RequestRetentionDays
	cfg.ConversationRetentionDays = c.Cleanup.ConversationRetentionDays
	cfg.HealthRetentionDays = c.Cleanup.HealthRetentionDays
	return cfg
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.ContainerID == "" {
		c.ContainerID = def.ContainerID
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.MaxMessageCount <= 0 {
		c.MaxMessageCount = def.MaxMessageCount
	}
	if c.MaxWaitTime <= 0 {
		c.MaxWaitTime = def.MaxWaitTime
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.SessionIdleTimeout <= 0 {
		c.SessionIdleTimeout = def.SessionIdleTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
}

// Processor consumes the request queue.
type Processor struct {
	cfg      Config
	queue    queue.Queue
	store    store.Store
	answerer Answerer
	logger   *slog.Logger
	now      func() time.Time

	inflight *inflight
	sessions *sessions
	batch    *batcher

	startedAt time.Time
	heartbeat atomic.Int64

	// Owned by the Run goroutine.
	lastMessage time.Time
	lastHealth  time.Time
	batchErrors int

	connErrors atomic.Int64
	processed  atomic.Int64
	failures   atomic.Int64
}

// New creates a Processor.
func New(q queue.Queue, st store.Store, answerer Answerer, cfg Config, logger *slog.Logger) *Processor {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		cfg:      cfg,
		queue:    q,
		store:    st,
		answerer: answerer,
		logger:   logger.With("container_id", cfg.ContainerID),
		now:      time.Now,
		inflight: newInflight(),
	}
	p.startedAt = p.now()
	p.sessions = newSessions(st, func() time.Time { return p.now() }, p.logger)
	p.batch = newBatcher(st, cfg.BatchSize, p.logger)
	return p
}

// Run processes messages until ctx is cancelled, which returns nil, or
// until the processor decides it must be restarted, which returns an error
// wrapping ErrRestartRequired.
func (p *Processor) Run(ctx context.Context) error {
	now := p.now()
	p.lastMessage = now
	p.lastHealth = now
	p.beat()

	p.logger.Info("starting message processing", "workers", p.cfg.MaxWorkers)
	p.event(ctx, model.EventContainerStartup,
		message(fmt.Sprintf("Container started with %d workers", p.cfg.MaxWorkers)))

	if !p.checkHealth(ctx) {
		p.logger.Warn("initial health check failed, proceeding anyway")
	}

	cleanup, cerr := p.startCleanup(ctx)
	if cerr != nil {
		return cerr
	}
	defer cleanup.Stop()

	defer func() {
		p.batch.flush(ctx, true)
		p.logger.Info("closing connections")
		p.event(ctx, model.EventContainerShutdown, message("Container shutting down"))
	}()

	for {
		if ctx.Err() != nil {
			p.logger.Info("stopping message processing")
			return nil
		}
		p.beat()

		if err := p.watch(ctx); err != nil {
			return p.restart(ctx, err)
		}

		err := p.poll(ctx)
		switch {
		case err == nil:
			p.batchErrors = 0
		case ctx.Err() != nil:
			continue
		case errors.Is(err, queue.ErrConnection):
			p.failures.Add(1)
			n := p.connErrors.Add(1)
			p.logger.Error("service bus connection error", "error", err, "consecutive_errors", n)
			p.event(ctx, model.EventServiceBusError, message(err.Error()))
			if n > int64(p.cfg.MaxConnectionErrors) {
				return p.restart(ctx, fmt.Errorf("too many consecutive service bus errors (%d)", n))
			}
			p.sleep(ctx, p.cfg.ConnectionErrorBackoff)
		default:
			p.failures.Add(1)
			p.batchErrors++
			p.logger.Error("error receiving messages batch", "error", err, "consecutive_errors", p.batchErrors)
			p.event(ctx, model.EventBatchError, message(err.Error()))
			if p.batchErrors > p.cfg.MaxBatchErrors {
				return p.restart(ctx, fmt.Errorf("too many errors processing message batches (%d)", p.batchErrors))
			}
			p.sleep(ctx, p.cfg.BatchErrorBackoff)
		}
	}
}

// poll receives one batch, answers it on the worker pool, then settles
// every message from this goroutine. Only a failed receive is returned;
// settlement failures are logged and the broker redelivers the message
// once its lock expires.
func (p *Processor) poll(ctx context.Context) error {
	msgs, err := p.queue.Receive(ctx, p.cfg.MaxMessageCount, p.cfg.MaxWaitTime)
	if err != nil {
		return fmt.Errorf("receive messages: %w", err)
	}
	if len(msgs) == 0 {
		p.sleep(ctx, p.cfg.IdleSleep)
		return nil
	}

	p.connErrors.Store(0)
	p.lastMessage = p.now()
	total := p.processed.Add(int64(len(msgs)))
	p.logger.Info("received messages batch", "count", len(msgs), "total_processed", total)

	outcomes := make([]settlement, len(msgs))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxWorkers)
	for i, msg := range msgs {
		g.Go(func() error {
			outcomes[i] = p.handle(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	settleCtx := context.WithoutCancel(ctx)
	for i, msg := range msgs {
		if err := p.settle(settleCtx, msg, outcomes[i]); err != nil {
			p.logger.Error("error performing message action",
				"action", outcomes[i].action.String(), "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

func (p *Processor) settle(ctx context.Context, msg *queue.Message, s settlement) error {
	switch s.action {
	case actionDeadLetter:
		return p.queue.DeadLetter(ctx, msg, s.reason, s.description)
	case actionAbandon:
		return p.queue.Abandon(ctx, msg)
	default:
		return p.queue.Complete(ctx, msg)
	}
}

// restart records why the processor is giving up and returns the error Run
// reports to its caller.
func (p *Processor) restart(ctx context.Context, cause error) error {
	p.logger.Error("restarting processing due to detected issues", "reason", cause)
	p.event(ctx, model.EventContainerRestart, message("Initiated restart due to detected issues: "+cause.Error()))
	p.batch.flush(ctx, true)
	return fmt.Errorf("%w: %w", ErrRestartRequired, cause)
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// event writes a container_health document. Failures are only logged.
func (p *Processor) event(ctx context.Context, kind model.HealthEventType, details map[string]any) {
	ev := model.NewHealthEvent(kind, details, p.cfg.ContainerID, p.now().Unix())
	if err := p.store.LogHealthEvent(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Error("failed to log container health event", "error_type", string(kind), "error", err)
	}
}

func message(s string) map[string]any {
	return map[string]any{"message": s}
}
