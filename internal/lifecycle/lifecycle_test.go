package lifecycle

import "testing"

func TestState_DefaultStarting(t *testing.T) {
	var s State
	if s.Phase() != Starting {
		t.Errorf("Phase() = %v, want starting", s.Phase())
	}
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestState_MarkReady(t *testing.T) {
	var s State
	s.MarkReady()
	if s.Phase() != Ready {
		t.Errorf("Phase() = %v, want ready", s.Phase())
	}
}

// TestState_ShutdownIsFinal verifies MarkReady after shutdown does not revive the process.
func TestState_ShutdownIsFinal(t *testing.T) {
	var s State
	s.MarkReady()
	s.SetShuttingDown()
	s.MarkReady()
	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown then MarkReady, want true")
	}
	if got := s.Phase().String(); got != "shutting-down" {
		t.Errorf("Phase().String() = %q", got)
	}
}
