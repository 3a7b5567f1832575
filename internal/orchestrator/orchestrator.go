package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rl-replay/internal/obs"
	"rl-replay/internal/platform/metrics"
)

// Backend is the set of recording backend operations a session needs.
// *obs.Client satisfies it.
type Backend interface {
	ConfigureReplayBuffer(ctx context.Context) error
	InitVideoSource(ctx context.Context) error
	Play(ctx context.Context, paths []string) error
	SaveBuffer(ctx context.Context) error
	SaveEvents() <-chan obs.SaveEvent
	Close() error
}

// Dialer opens a fresh backend connection.
type Dialer func(ctx context.Context, ep obs.Endpoint) (Backend, error)

// Source produces raw telemetry messages. The returned channel is closed by
// the producer when the transport stops or ctx is done.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
}

type Option func(*Orchestrator)

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics records triggers, saves and session state. m may be nil.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDelayTimer replaces time.After for the post-trigger wait.
func WithDelayTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(o *Orchestrator) { o.after = after }
}

// Orchestrator owns the capture session lifecycle: at most one session runs
// at a time, and each session drives telemetry into delayed replay saves.
type Orchestrator struct {
	config  *SessionConfig
	state   *RunState
	dial    Dialer
	source  Source
	clips   chan<- obs.SaveEvent
	log     *slog.Logger
	metrics *metrics.Metrics
	after   func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	endpoint *obs.Endpoint
	cancel   context.CancelFunc
	done     chan struct{}
	trigger  chan struct{}
}

// New builds an Orchestrator. config and state are shared with the rest of
// the process; save events from every session are forwarded to clips.
func New(config *SessionConfig, state *RunState, dial Dialer, source Source, clips chan<- obs.SaveEvent, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config: config,
		state:  state,
		dial:   dial,
		source: source,
		clips:  clips,
		log:    slog.Default(),
		after:  time.After,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates ep by connecting and preparing the backend, records it as
// the last known endpoint and spawns the session run loop. It returns as soon
// as the loop is spawned.
func (o *Orchestrator) Start(ctx context.Context, ep obs.Endpoint) error {
	if !o.state.begin() {
		return ErrAlreadyRunning
	}

	probe, err := o.prepare(ctx, ep)
	if err != nil {
		o.state.abort()
		return err
	}
	probe.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	trigger := make(chan struct{}, 1)

	o.mu.Lock()
	o.endpoint = &ep
	o.cancel = cancel
	o.done = done
	o.trigger = trigger
	o.mu.Unlock()

	o.state.commit()
	o.metrics.SetSessionRunning(true)
	o.log.Info("capture session started", slog.String("endpoint", ep.Addr()))

	go o.run(runCtx, cancel, ep, trigger, done)
	return nil
}

// prepare dials ep and arms the replay buffer and video source. The returned
// backend is owned by the caller.
func (o *Orchestrator) prepare(ctx context.Context, ep obs.Endpoint) (Backend, error) {
	b, err := o.dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendConnect, err)
	}
	if err := b.ConfigureReplayBuffer(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfigureReplayBuffer, err)
	}
	if err := b.InitVideoSource(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %w", ErrInitVideoSource, err)
	}
	return b, nil
}

// Stop cancels the running session, aborting any pending delayed save, and
// waits for the run loop to exit or ctx to end.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.state.shutdown() {
		return ErrNotRunning
	}
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	o.log.Info("stopping capture session")
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger queues a manual replay save on the running session. It goes
// through the same delay as telemetry triggers. A trigger already queued
// absorbs this one.
func (o *Orchestrator) Trigger() error {
	if !o.state.Running() {
		return ErrNotRunning
	}
	o.mu.Lock()
	trigger := o.trigger
	o.mu.Unlock()

	select {
	case trigger <- struct{}{}:
	default:
		o.log.Debug("manual trigger already pending")
	}
	return nil
}

// Play asks the backend to play clips through the managed video source using
// a short-lived connection to the last known endpoint. An empty list is a
// no-op.
func (o *Orchestrator) Play(ctx context.Context, clips []string) error {
	if len(clips) == 0 {
		return nil
	}
	ep, ok := o.Endpoint()
	if !ok {
		return ErrNoConnectionInfo
	}

	b, err := o.dial(ctx, ep)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendConnect, err)
	}
	defer b.Close()

	if err := b.Play(ctx, clips); err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	o.log.Info("playback started", slog.Int("clips", len(clips)))
	return nil
}

// Endpoint returns the last endpoint a session started against.
func (o *Orchestrator) Endpoint() (obs.Endpoint, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.endpoint == nil {
		return obs.Endpoint{}, false
	}
	return *o.endpoint, true
}

func (o *Orchestrator) Delay() int {
	return o.config.Delay()
}

// SetDelay clamps and stores the delay, returning the stored value.
func (o *Orchestrator) SetDelay(v int) int {
	stored := o.config.SetDelay(v)
	o.log.Info("replay delay updated", slog.Int("requested", v), slog.Int("delay_seconds", stored))
	return stored
}

// Status is a point-in-time view of the session for the front end.
type Status struct {
	State        string `json:"state"`
	Running      bool   `json:"running"`
	DelaySeconds int    `json:"delay_seconds"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
}

func (o *Orchestrator) Status() Status {
	st := o.state.Current()
	s := Status{
		State:        st.String(),
		Running:      st == StateRunning,
		DelaySeconds: o.config.Delay(),
	}
	if ep, ok := o.Endpoint(); ok {
		s.Host = ep.Host
		s.Port = ep.Port
	}
	return s
}
