package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rl-replay/internal/obs"
	"rl-replay/internal/orchestrator"
	"rl-replay/internal/platform/config"
	"rl-replay/internal/platform/logger"
	"rl-replay/internal/platform/metrics"
	"rl-replay/internal/playlist"
	"rl-replay/internal/telemetry"
	"rl-replay/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
)

const (
	shutdownTimeout  = 10 * time.Second
	autoStartTimeout = 15 * time.Second
	logRetentionDays = 14
	saveEventBuffer  = 32
)

func main() {
	var (
		configPath string
		envFile    string
		addrFlag   string
		levelFlag  string
	)
	flagSet := pflag.NewFlagSet("rl-replay", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML settings file")
	flagSet.StringVar(&envFile, "env-file", ".env", "path to .env file")
	flagSet.StringVar(&addrFlag, "addr", "", "HTTP listen address (overrides settings)")
	flagSet.StringVar(&levelFlag, "log-level", "", "log level: debug, info, warn, error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	_ = config.Load(envFile)
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if addrFlag != "" {
		settings.Server.Addr = addrFlag
	}
	if levelFlag != "" {
		settings.Log.Level = levelFlag
	}

	var logOut io.Writer = os.Stdout
	if settings.Log.Dir != "" {
		rotator, err := logger.NewDailyRotator(settings.Log.Dir, "rl-replay", logRetentionDays)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer rotator.Close()
		logOut = io.MultiWriter(os.Stdout, rotator)
	}
	log := logger.New(settings.Log.Level, settings.Log.Format, logOut)
	met := metrics.New()

	var store playlist.Store = playlist.NewInMemoryStore()
	if settings.Store.Path != "" {
		sq, err := playlist.OpenSQLite(settings.Store.Path)
		if err != nil {
			log.Error("open clip store", slog.String("path", settings.Store.Path), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer sq.Close()
		store = sq
	}

	mgr := playlist.NewManager(store, settings.Replay.Window, log, met)
	hub := ws.NewHub(mgr.Clips, log)
	defer hub.Close()
	mgr.SetNotifier(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	saveEvents := make(chan obs.SaveEvent, saveEventBuffer)
	go mgr.Run(ctx, saveEvents)

	sessionConfig := orchestrator.NewSessionConfig()
	sessionConfig.SetDelay(settings.Replay.DelaySeconds)

	dial := func(ctx context.Context, ep obs.Endpoint) (orchestrator.Backend, error) {
		c, err := obs.Dial(ctx, ep, obs.WithLogger(log), obs.WithInputName(settings.OBS.InputName))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	source := &telemetry.UDPSource{
		Addr:   settings.Telemetry.Addr,
		Buffer: settings.Telemetry.Buffer,
		Log:    log,
	}
	orch := orchestrator.New(sessionConfig, orchestrator.NewRunState(), dial, source, saveEvents,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(met),
	)

	h := orchestrator.NewHandler(orch, log)
	ph := playlist.NewHandler(mgr, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			if n, err := mgr.Count(); err == nil {
				met.SetClips(n)
			}
		}).ServeHTTP(w, r)
	})
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Post("/", h.StartSession)
		r.Delete("/", h.StopSession)
		r.Post("/replay", h.Replay)
	})
	r.Post("/playback", h.Play)
	r.Route("/config/delay", func(r chi.Router) {
		r.Get("/", h.GetDelay)
		r.Put("/", h.SetDelay)
	})
	r.Route("/clips", func(r chi.Router) {
		r.Get("/", ph.ListClips)
		r.Get("/playlist.m3u8", ph.GetPlaylist)
	})
	r.Handle("/ws", hub)

	srv := &http.Server{Addr: settings.Server.Addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"addr", settings.Server.Addr,
		"telemetry_addr", settings.Telemetry.Addr,
		"delay_seconds", sessionConfig.Delay(),
		"log_level", settings.Log.Level,
	)

	if settings.OBS.AutoStart {
		ep := obs.Endpoint{Host: settings.OBS.Host, Port: settings.OBS.Port, Password: settings.OBS.Password}
		startCtx, cancel := context.WithTimeout(ctx, autoStartTimeout)
		if err := orch.Start(startCtx, ep); err != nil {
			log.Warn("auto start failed", slog.String("endpoint", ep.Addr()), slog.String("error", err.Error()))
		}
		cancel()
	}

	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := orch.Stop(shutdownCtx); err != nil && !errors.Is(err, orchestrator.ErrNotRunning) {
		log.Error("session stop error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
