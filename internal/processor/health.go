package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

const healthProbeTimeout = 5 * time.Second

// Stats is a snapshot of the processor counters.
type Stats struct {
	Uptime            time.Duration `json:"-"`
	UptimeHours       float64       `json:"uptime_hours"`
	MessagesProcessed int64         `json:"messages_processed"`
	Errors            int64         `json:"errors"`
	ActiveRequests    int           `json:"active_requests"`
	CachedAssistants  int           `json:"cached_assistants"`
	ConnectionErrors  int64         `json:"connection_errors"`
	PendingWrites     int           `json:"pending_conversations"`
	LastHeartbeat     time.Time     `json:"last_heartbeat"`
}

// Stats returns the current counters.
func (p *Processor) Stats() Stats {
	up := time.Duration(0)
	if !p.startedAt.IsZero() {
		up = p.now().Sub(p.startedAt)
	}
	return Stats{
		Uptime:            up,
		UptimeHours:       math.Round(up.Hours()*100) / 100,
		MessagesProcessed: p.processed.Load(),
		Errors:            p.failures.Load(),
		ActiveRequests:    p.inflight.count(),
		CachedAssistants:  p.sessions.len(),
		ConnectionErrors:  p.connErrors.Load(),
		PendingWrites:     p.batch.len(),
		LastHeartbeat:     p.Heartbeat(),
	}
}

func (p *Processor) beat() { p.heartbeat.Store(p.now().UnixNano()) }

// Heartbeat returns when the main loop last went round. It is zero before
// Run starts.
func (p *Processor) Heartbeat() time.Time {
	n := p.heartbeat.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Alive reports whether the main loop went round within maxAge.
func (p *Processor) Alive(maxAge time.Duration) bool {
	hb := p.Heartbeat()
	return !hb.IsZero() && p.now().Sub(hb) <= maxAge
}

// CheckHealth probes the queue and the store. It is safe to call from any
// goroutine.
func (p *Processor) CheckHealth(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if _, err := p.queue.Peek(pctx, 1); err != nil {
		return &probeError{kind: probeQueue, err: err}
	}
	if err := p.store.Ping(pctx); err != nil {
		return &probeError{kind: probeStore, err: err}
	}
	return nil
}

type probeKind int

const (
	probeQueue probeKind = iota
	probeStore
)

type probeError struct {
	kind probeKind
	err  error
}

func (e *probeError) Error() string {
	if e.kind == probeQueue {
		return fmt.Sprintf("service bus health check failed: %v", e.err)
	}
	return fmt.Sprintf("store health check failed: %v", e.err)
}

func (e *probeError) Unwrap() error { return e.err }

// checkHealth runs the probes, records failures as health events and
// maintains the consecutive connection error count.
func (p *Processor) checkHealth(ctx context.Context) bool {
	p.logger.Info("performing container health check")
	p.lastHealth = p.now()

	if err := p.CheckHealth(ctx); err != nil {
		p.connErrors.Add(1)
		p.logger.Error("container health check failed", "error", err)
		var pe *probeError
		switch {
		case errors.As(err, &pe) && pe.kind == probeQueue:
			p.event(ctx, model.EventServiceBusConnect, message(pe.err.Error()))
		case errors.As(err, &pe):
			p.event(ctx, model.EventCosmosDBConnect, message(pe.err.Error()))
		default:
			p.event(ctx, model.EventHealthCheckError, message(err.Error()))
		}
		return false
	}

	if stuck := p.inflight.olderThan(p.cfg.StuckAlertAfter, p.now()); len(stuck) > 0 {
		p.logger.Warn("found potentially stuck requests", "count", len(stuck), "requests", stuck)
		p.event(ctx, model.EventStuckRequests, stuckDetails(stuck))
	}

	p.connErrors.Store(0)
	p.logger.Info("all container health checks passed")
	return true
}

// watch runs the periodic checks of the main loop and returns an error
// when the container should restart.
func (p *Processor) watch(ctx context.Context) error {
	now := p.now()

	if p.cfg.HealthCheckInterval > 0 && now.Sub(p.lastHealth) > p.cfg.HealthCheckInterval {
		if !p.checkHealth(ctx) {
			if n := p.connErrors.Load(); n > int64(p.cfg.MaxConnectionErrors) {
				return fmt.Errorf("health check failed %d times", n)
			}
		}
	}

	if p.cfg.NoMessageTimeout > 0 && now.Sub(p.lastMessage) > p.cfg.NoMessageTimeout {
		p.logger.Warn("no messages received recently, checking service bus connection",
			"minutes", math.Round(p.cfg.NoMessageTimeout.Minutes()*10)/10)
		if !p.checkHealth(ctx) {
			return errors.New("health check after message timeout failed")
		}
		p.lastMessage = p.now()
	}

	p.monitorStuck(ctx)
	return nil
}

// monitorStuck reports requests running longer than StuckWarnAfter, once
// per request.
func (p *Processor) monitorStuck(ctx context.Context) {
	if p.cfg.StuckWarnAfter <= 0 {
		return
	}
	stuck := p.inflight.unreported(p.inflight.olderThan(p.cfg.StuckWarnAfter, p.now()))
	if len(stuck) == 0 {
		return
	}
	p.logger.Warn("found potentially stuck requests", "count", len(stuck), "requests", stuck)
	p.event(ctx, model.EventStuckRequests, stuckDetails(stuck))
}

func stuckDetails(stuck map[string]int64) map[string]any {
	d := make(map[string]any, len(stuck))
	for id, secs := range stuck {
		d[id] = secs
	}
	return d
}

// ReportMetrics logs the counters, records them as a metrics health event
// and resets the message and error counts.
func (p *Processor) ReportMetrics(ctx context.Context) {
	s := p.Stats()

	perHour := 0.0
	if h := s.Uptime.Hours(); h > 0 {
		perHour = math.Round(float64(s.MessagesProcessed)/h*100) / 100
	}
	p.logger.Info("processor metrics",
		"uptime_hours", s.UptimeHours,
		"messages_processed", s.MessagesProcessed,
		"errors", s.Errors,
		"messages_per_hour", perHour,
		"active_requests", s.ActiveRequests,
		"cached_assistants", s.CachedAssistants,
		"connection_errors", s.ConnectionErrors,
	)
	p.event(ctx, model.EventMetrics, map[string]any{
		"uptime_hours":       s.UptimeHours,
		"messages_processed": s.MessagesProcessed,
		"errors":             s.Errors,
		"active_requests":    s.ActiveRequests,
		"cached_assistants":  s.CachedAssistants,
		"connection_errors":  s.ConnectionErrors,
	})

	p.processed.Store(0)
	p.failures.Store(0)
}
