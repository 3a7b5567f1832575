package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the replay service.
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       *prometheus.CounterVec
	errorsTotal         prometheus.Counter
	triggersTotal       prometheus.Counter
	savesTotal          prometheus.Counter
	saveFailuresTotal   prometheus.Counter
	decodeFailuresTotal prometheus.Counter
	clipsSavedTotal     prometheus.Counter
	sessionRunning      prometheus.Gauge
	clips               prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rlreplay_requests_total",
		Help: "Total number of HTTP requests received",
	}, []string{"route", "status"})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	triggersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_triggers_total",
		Help: "Total number of trigger commands handled by the dispatch loop",
	})
	savesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_saves_total",
		Help: "Total number of replay buffer saves requested successfully",
	})
	saveFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_save_failures_total",
		Help: "Total number of replay buffer save requests that failed",
	})
	decodeFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_decode_failures_total",
		Help: "Total number of telemetry messages that failed to decode",
	})
	clipsSavedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rlreplay_clips_saved_total",
		Help: "Total number of saved clips recorded by the playlist manager",
	})
	sessionRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rlreplay_session_running",
		Help: "1 while a capture session is running, 0 otherwise",
	})
	clips := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rlreplay_clips",
		Help: "Number of clips in the playlist store",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		triggersTotal,
		savesTotal,
		saveFailuresTotal,
		decodeFailuresTotal,
		clipsSavedTotal,
		sessionRunning,
		clips,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		triggersTotal:       triggersTotal,
		savesTotal:          savesTotal,
		saveFailuresTotal:   saveFailuresTotal,
		decodeFailuresTotal: decodeFailuresTotal,
		clipsSavedTotal:     clipsSavedTotal,
		sessionRunning:      sessionRunning,
		clips:               clips,
	}
}

// ObserveRequest counts one HTTP request by route pattern and status.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	if status >= 400 {
		m.errorsTotal.Inc()
	}
}

func (m *Metrics) IncTriggers() {
	if m != nil {
		m.triggersTotal.Inc()
	}
}

func (m *Metrics) IncSaves() {
	if m != nil {
		m.savesTotal.Inc()
	}
}

func (m *Metrics) IncSaveFailures() {
	if m != nil {
		m.saveFailuresTotal.Inc()
	}
}

func (m *Metrics) IncDecodeFailures() {
	if m != nil {
		m.decodeFailuresTotal.Inc()
	}
}

func (m *Metrics) IncClipsSaved() {
	if m != nil {
		m.clipsSavedTotal.Inc()
	}
}

// SetSessionRunning sets the session gauge to 1 or 0.
func (m *Metrics) SetSessionRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.sessionRunning.Set(1)
	} else {
		m.sessionRunning.Set(0)
	}
}

// SetClips sets the clips gauge.
func (m *Metrics) SetClips(n int) {
	if m != nil {
		m.clips.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
