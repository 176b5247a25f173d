package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a recorded event.
type Outcome int

const (
	// UpstreamOK is a weather API call that returned a decoded payload.
	UpstreamOK Outcome = iota
	// UpstreamFailed is a weather API call that failed (network, status or decode).
	UpstreamFailed
	// Denied is an inbound request rejected by the rate limiter.
	Denied
	// Served is an inbound request admitted by the rate limiter.
	Served
)

const retention = 30 * time.Minute

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker keeps a sliding window of outcome timestamps. It feeds the health
// check (upstream error rate) and the rate-limit gauges. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record appends an outcome at the current time. A nil tracker ignores the call.
func (t *Tracker) Record(o Outcome) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns how many events of the given outcome fall inside the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, e := range t.events {
		if e.outcome == o && !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// UpstreamErrorRate returns (failures, total) of upstream calls inside the window.
// Denials are not upstream calls and are excluded.
func (t *Tracker) UpstreamErrorRate(window time.Duration) (failures, total int) {
	failures = t.Count(UpstreamFailed, window)
	return failures, failures + t.Count(UpstreamOK, window)
}

// RequestCount returns inbound requests (served plus denied) inside the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	return t.Count(Served, window) + t.Count(Denied, window)
}

// Reset drops all recorded events.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than the retention horizon. Events are appended
// in time order so the stale prefix is contiguous.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
