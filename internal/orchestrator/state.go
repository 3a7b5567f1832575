package orchestrator

import "sync/atomic"

// State is the lifecycle position of the capture session.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// RunState holds the process-wide session state. Every transition is a
// compare-and-swap, so two racing Start calls cannot both leave Idle and
// readers never block writers.
type RunState struct {
	state atomic.Int32
}

func NewRunState() *RunState {
	return &RunState{}
}

func (r *RunState) Current() State {
	return State(r.state.Load())
}

// Running reports whether a session has been committed and not yet torn down.
func (r *RunState) Running() bool {
	return r.Current() == StateRunning
}

func (r *RunState) transition(from, to State) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

// begin claims the session slot: Idle -> Starting.
func (r *RunState) begin() bool { return r.transition(StateIdle, StateStarting) }

// abort releases a claim after a failed start: Starting -> Idle.
func (r *RunState) abort() bool { return r.transition(StateStarting, StateIdle) }

// commit marks the session live: Starting -> Running.
func (r *RunState) commit() bool { return r.transition(StateStarting, StateRunning) }

// shutdown requests teardown: Running -> ShuttingDown.
func (r *RunState) shutdown() bool { return r.transition(StateRunning, StateShuttingDown) }

// finish is called once by the run loop on exit.
func (r *RunState) finish() { r.state.Store(int32(StateIdle)) }
