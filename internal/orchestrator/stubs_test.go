package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"rl-replay/internal/obs"
)

type stubBackend struct {
	mu           sync.Mutex
	configureErr error
	initErr      error
	saveErr      error
	playErr      error
	saves        int
	played       [][]string
	closed       bool
	events       chan obs.SaveEvent
	saved        chan struct{}
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		events: make(chan obs.SaveEvent, 4),
		saved:  make(chan struct{}, 16),
	}
}

func (b *stubBackend) ConfigureReplayBuffer(context.Context) error { return b.configureErr }
func (b *stubBackend) InitVideoSource(context.Context) error { return b.initErr }

func (b *stubBackend) Play(_ context.Context, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.played = append(b.played, paths)
	return b.playErr
}

func (b *stubBackend) SaveBuffer(context.Context) error {
	b.mu.Lock()
	b.saves++
	b.mu.Unlock()
	b.saved <- struct{}{}
	return b.saveErr
}

func (b *stubBackend) SaveEvents() <-chan obs.SaveEvent { return b.events }

func (b *stubBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

func (b *stubBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *stubBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// stubDialer hands out a new stubBackend per dial. setup, if set, can
// fail a dial or alter the backend by 1-based dial number.
type stubDialer struct {
	mu        sync.Mutex
	endpoints []obs.Endpoint
	backends  []*stubBackend
	setup     func(n int, b *stubBackend) error
}

func (d *stubDialer) dial(_ context.Context, ep obs.Endpoint) (Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, ep)
	b := newStubBackend()
	if d.setup != nil {
		if err := d.setup(len(d.endpoints), b); err != nil {
			return nil, err
		}
	}
	d.backends = append(d.backends, b)
	return b, nil
}

func (d *stubDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *stubDialer) backend(i int) *stubBackend {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backends[i]
}

// stubSource forwards test-fed messages until in is closed or ctx is done,
// closing its output like a real producer.
type stubSource struct {
	in  chan []byte
	err error
}

func newStubSource() *stubSource {
	return &stubSource{in: make(chan []byte, 32)}
}

func (s *stubSource) Start(ctx context.Context) (<-chan []byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-s.in:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *stubSource) send(msgs ...string) {
	for _, m := range msgs {
		s.in <- []byte(m)
	}
}

// fakeTimer records requested delays and fires only when told to.
type fakeTimer struct {
	mu        sync.Mutex
	durations []time.Duration
	fire      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{fire: make(chan time.Time)}
}

func (f *fakeTimer) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.durations = append(f.durations, d)
	f.mu.Unlock()
	return f.fire
}

func (f *fakeTimer) waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.durations...)
}

var errStub = errors.New("stub failure")

type harness struct {
	orch   *Orchestrator
	config *SessionConfig
	state  *RunState
	dialer *stubDialer
	source *stubSource
	timer  *fakeTimer
	clips  chan obs.SaveEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		config: NewSessionConfig(),
		state:  NewRunState(),
		dialer: &stubDialer{},
		source: newStubSource(),
		timer:  newFakeTimer(),
		clips:  make(chan obs.SaveEvent, 8),
	}
	h.orch = New(h.config, h.state, h.dialer.dial, h.source, h.clips,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDelayTimer(h.timer.after),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.orch.Stop(ctx)
	})
	return h
}

var localEndpoint = obs.Endpoint{Host: "127.0.0.1", Port: 4444}

// startSession starts a session and waits until the run loop holds its own
// backend (the second dial).
func (h *harness) startSession(t *testing.T) *stubBackend {
	t.Helper()
	if err := h.orch.Start(context.Background(), localEndpoint); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return h.dialer.dials() >= 2 })
	return h.dialer.backend(1)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
