package processor

import (
	"sync"
	"time"
)

// inflight tracks the requests currently being answered so that a message
// redelivered while its first copy is still running is dropped.
type inflight struct {
	mu       sync.Mutex
	started  map[string]time.Time
	reported map[string]bool
}

func newInflight() *inflight {
	return &inflight{
		started:  make(map[string]time.Time),
		reported: make(map[string]bool),
	}
}

// acquire marks requestID as running. It returns false if it already is.
func (f *inflight) acquire(requestID string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.started[requestID]; ok {
		return false
	}
	f.started[requestID] = now
	return true
}

func (f *inflight) release(requestID string) {
	f.mu.Lock()
	delete(f.started, requestID)
	delete(f.reported, requestID)
	f.mu.Unlock()
}

func (f *inflight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

// olderThan returns the running requests started more than age ago, with
// their running time in seconds.
func (f *inflight) olderThan(age time.Duration, now time.Time) map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]int64
	for id, start := range f.started {
		if d := now.Sub(start); d > age {
			if out == nil {
				out = make(map[string]int64)
			}
			out[id] = int64(d.Seconds())
		}
	}
	return out
}

// unreported filters stuck to the requests not reported before and marks
// them reported.
func (f *inflight) unreported(stuck map[string]int64) map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]int64
	for id, secs := range stuck {
		if f.reported[id] {
			continue
		}
		f.reported[id] = true
		if out == nil {
			out = make(map[string]int64)
		}
		out[id] = secs
	}
	return out
}
