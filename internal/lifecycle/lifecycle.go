package lifecycle

import "sync/atomic"

// Phase is the process phase reported by /health.
type Phase int32

const (
	Starting Phase = iota
	Ready
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "starting"
	}
}

// State tracks the process phase. The zero value is Starting. Safe for concurrent use.
type State struct {
	phase atomic.Int32
}

// MarkReady moves Starting to Ready. It never undoes a shutdown.
func (s *State) MarkReady() {
	s.phase.CompareAndSwap(int32(Starting), int32(Ready))
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown() {
	s.phase.Store(int32(ShuttingDown))
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.Phase() == ShuttingDown
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}
