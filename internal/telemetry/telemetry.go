// Package telemetry runs the periodic processor metrics report.
package telemetry

import (
	"context"
	"sync"
	"time"
)

// Reporter is the action run every interval. The processor's ReportMetrics
// satisfies it.
type Reporter func(ctx context.Context)

// Tracker calls a Reporter on a fixed interval in the background.
type Tracker struct {
	interval time.Duration
	report   Reporter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Tracker. Returns nil when interval is not positive, which
// disables reporting; every method is safe on a nil Tracker.
func New(interval time.Duration, report Reporter) *Tracker {
	if interval <= 0 || report == nil {
		return nil
	}
	return &Tracker{interval: interval, report: report}
}

// Start begins the background loop. The first report happens one interval
// after Start. Non-blocking.
func (t *Tracker) Start(ctx context.Context) {
	if t == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.report(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop and sends a final report.
func (t *Tracker) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.report(context.WithoutCancel(ctx))
}
