package orchestrator

import "sync/atomic"

const (
	MinDelay     = 1
	MaxDelay     = 30
	DefaultDelay = 3
)

// SessionConfig holds the replay delay in seconds. It is shared between the
// front end, which sets it, and the dispatch loop, which reads it on every
// trigger.
type SessionConfig struct {
	delay atomic.Int64
}

// NewSessionConfig returns a config with DefaultDelay.
func NewSessionConfig() *SessionConfig {
	c := &SessionConfig{}
	c.delay.Store(DefaultDelay)
	return c
}

// Delay returns the current delay in seconds.
func (c *SessionConfig) Delay() int {
	return int(c.delay.Load())
}

// SetDelay stores v clamped to [MinDelay, MaxDelay] and returns the stored value.
func (c *SessionConfig) SetDelay(v int) int {
	v = min(max(v, MinDelay), MaxDelay)
	c.delay.Store(int64(v))
	return v
}
