package traffic

import (
	"testing"
	"time"
)

func newTestTracker(now *time.Time) *Tracker {
	return &Tracker{now: func() time.Time { return *now }}
}

// TestCount_Empty verifies that a fresh tracker reports zero for every outcome.
func TestCount_Empty(t *testing.T) {
	tr := NewTracker()
	for _, o := range []Outcome{UpstreamOK, UpstreamFailed, Denied} {
		if n := tr.Count(o, time.Minute); n != 0 {
			t.Errorf("Count(%d) = %d, want 0", o, n)
		}
	}
}

// TestUpstreamErrorRate_DeniedExcluded verifies that rate-limit denials do not
// count toward the upstream error rate denominator.
func TestUpstreamErrorRate_DeniedExcluded(t *testing.T) {
	tr := NewTracker()
	tr.Record(UpstreamOK)
	tr.Record(UpstreamOK)
	tr.Record(UpstreamFailed)
	tr.Record(Denied)
	failures, total := tr.UpstreamErrorRate(time.Minute)
	if failures != 1 || total != 3 {
		t.Errorf("UpstreamErrorRate() = (%d, %d), want (1, 3)", failures, total)
	}
	if n := tr.Count(Denied, time.Minute); n != 1 {
		t.Errorf("Count(Denied) = %d, want 1", n)
	}
}

// TestCount_WindowExcludesOldEvents verifies that events older than the window
// are not counted and events past retention are pruned.
func TestCount_WindowExcludesOldEvents(t *testing.T) {
	now := time.Date(2025, 11, 25, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(&now)
	tr.Record(UpstreamFailed)
	now = now.Add(2 * time.Minute)
	tr.Record(UpstreamOK)

	if n := tr.Count(UpstreamFailed, time.Minute); n != 0 {
		t.Errorf("Count(UpstreamFailed, 1m) = %d, want 0", n)
	}
	if n := tr.Count(UpstreamFailed, 5*time.Minute); n != 1 {
		t.Errorf("Count(UpstreamFailed, 5m) = %d, want 1", n)
	}

	now = now.Add(time.Hour)
	tr.Record(UpstreamOK)
	if len(tr.events) != 1 {
		t.Errorf("events after prune = %d, want 1", len(tr.events))
	}
}

// TestNilTracker verifies that a nil tracker is a safe no-op.
func TestNilTracker(t *testing.T) {
	var tr *Tracker
	tr.Record(UpstreamOK)
	if n := tr.Count(UpstreamOK, time.Minute); n != 0 {
		t.Errorf("Count() on nil tracker = %d, want 0", n)
	}
}

// TestReset verifies that Reset clears all recorded events.
func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Record(UpstreamOK)
	tr.Record(Denied)
	tr.Reset()
	if _, total := tr.UpstreamErrorRate(time.Minute); total != 0 {
		t.Errorf("total after Reset = %d, want 0", total)
	}
}

func TestRequestCount_ServedPlusDenied(t *testing.T) {
	tr := NewTracker()
	tr.Record(Served)
	tr.Record(Served)
	tr.Record(Denied)
	tr.Record(UpstreamOK)
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}
