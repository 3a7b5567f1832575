package playlist

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"rl-replay/internal/obs"
	"rl-replay/internal/platform/metrics"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DefaultWindow is the number of recent clips exposed by Clips and Playlist.
const DefaultWindow = 10

// Notifier is told about every clip the manager records.
type Notifier interface {
	ClipSaved(c Clip)
}

// Manager turns backend save events into an ordered clip history.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	window   int
	log      *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	stat     func(string) (os.FileInfo, error)
	now      func() time.Time
}

// NewManager returns a Manager persisting to store. If window <= 0,
// DefaultWindow is used. Metrics may be nil.
func NewManager(store Store, window int, log *slog.Logger, m *metrics.Metrics) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{
		store:   store,
		window:  window,
		log:     log,
		metrics: m,
		stat:    os.Stat,
		now:     time.Now,
	}
}

// SetNotifier registers n to receive clip events. Passing nil disables
// notification.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// Run records one clip per event, in arrival order, until ctx is done or
// events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan obs.SaveEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := m.Add(ev); err != nil {
				m.log.Error("record clip failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Add records a single save event and returns the stored clip.
func (m *Manager) Add(ev obs.SaveEvent) (Clip, error) {
	c := Clip{
		ID:      uuid.NewString(),
		Path:    ev.Path,
		Name:    clipName(ev.Path),
		SavedAt: ev.SavedAt,
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = m.now().UTC()
	}
	if fi, err := m.stat(ev.Path); err == nil {
		c.SizeBytes = fi.Size()
	} else {
		m.log.Debug("clip not readable from here", slog.String("path", ev.Path), slog.String("error", err.Error()))
	}

	m.mu.Lock()
	err := m.store.Append(c)
	n := m.notifier
	m.mu.Unlock()
	if err != nil {
		return Clip{}, err
	}

	m.metrics.IncClipsSaved()
	m.log.Info("clip saved",
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.String("size", humanize.Bytes(uint64(c.SizeBytes))))
	if n != nil {
		n.ClipSaved(c)
	}
	return c, nil
}

// Clips returns the most recent window of clips, oldest first.
func (m *Manager) Clips() ([]Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Recent(m.window)
}

// Count returns the total number of recorded clips.
func (m *Manager) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Count()
}

// Playlist renders the current clip window as M3U.
func (m *Manager) Playlist() (string, error) {
	clips, err := m.Clips()
	if err != nil {
		return "", err
	}
	return BuildPlaylist(clips), nil
}
