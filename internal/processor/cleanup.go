package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupReport counts what one cleanup pass removed.
type CleanupReport struct {
	Requests      int64
	Conversations int64
	HealthEvents  int64
	Assistants    int
}

// Cleanup flushes buffered conversations, deletes documents past their
// retention and ends idle sessions. Every step runs even when an earlier
// one fails; the failures are joined in the returned error.
func (p *Processor) Cleanup(ctx context.Context) (CleanupReport, error) {
	var (
		rep  CleanupReport
		errs []error
	)
	p.batch.flush(ctx, true)

	p.logger.Info("running cleanup task", "cleanup_days", p.cfg.RequestRetentionDays)
	now := p.now()

	if days := p.cfg.RequestRetentionDays; days > 0 {
		n, err := p.store.DeleteRequestsBefore(ctx, cutoff(now, days))
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup requests: %w", err))
		} else {
			rep.Requests = n
			p.logger.Info("cleaned up old requests", "count", n)
		}
	}
	if days := p.cfg.ConversationRetentionDays; days > 0 {
		n, err := p.store.DeleteConversationsBefore(ctx, cutoff(now, days))
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup conversations: %w", err))
		} else {
			rep.Conversations = n
			p.logger.Info("cleaned up old conversations", "count", n)
		}
	}
	if days := p.cfg.HealthRetentionDays; days > 0 {
		n, err := p.store.DeleteHealthEventsBefore(ctx, cutoff(now, days))
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup health events: %w", err))
		} else {
			rep.HealthEvents = n
			p.logger.Info("cleaned up old health events", "count", n)
		}
	}

	n, err := p.sessions.sweep(ctx, p.cfg.SessionIdleTimeout)
	rep.Assistants = n
	if err != nil {
		errs = append(errs, fmt.Errorf("cleanup assistants: %w", err))
	}
	if n > 0 {
		p.logger.Info("cleaned up inactive assistants", "count", n)
	}

	err = errors.Join(errs...)
	if err != nil {
		p.logger.Error("error during cleanup task", "error", err)
	}
	return rep, err
}

func cutoff(now time.Time, days int) int64 {
	return now.Add(-time.Duration(days) * 24 * time.Hour).Unix()
}

// startCleanup schedules Cleanup every CleanupInterval.
func (p *Processor) startCleanup(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", p.cfg.CleanupInterval)
	if _, err := c.AddFunc(schedule, func() {
		_, _ = p.Cleanup(ctx)
	}); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	c.Start()
	p.logger.Info("cleanup scheduler started", "schedule", schedule)
	return c, nil
}
