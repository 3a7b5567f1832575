package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rl-replay/internal/obs"
	"rl-replay/internal/telemetry"
)

// run is the session body. It owns its backend connection and telemetry
// stream, and releases the session slot on every exit path.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, ep obs.Endpoint, trigger <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		o.state.finish()
		o.metrics.SetSessionRunning(false)
		o.log.Info("capture session ended", slog.String("endpoint", ep.Addr()))
	}()
	defer cancel()

	b, err := o.prepare(ctx, ep)
	if err != nil {
		o.log.Error("session setup failed", slog.String("error", err.Error()))
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.forward(ctx, b.SaveEvents())
	}()
	defer func() {
		cancel()
		b.Close()
		wg.Wait()
	}()

	msgs, err := o.source.Start(ctx)
	if err != nil {
		o.log.Error("telemetry listener failed", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			o.save(ctx, b, "manual")
		case raw, ok := <-msgs:
			if !ok {
				o.log.Info("telemetry stream closed")
				return
			}
			o.handle(ctx, b, raw)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, b Backend, raw []byte) {
	cmd, err := telemetry.Decode(raw)
	if err != nil {
		o.metrics.IncDecodeFailures()
		o.log.Warn("ignoring telemetry message", slog.String("error", err.Error()))
		return
	}
	if !cmd.IsTrigger() {
		o.log.Debug("telemetry command", slog.String("command", cmd.String()))
		return
	}
	o.save(ctx, b, cmd.String())
}

// save waits the configured delay, then saves the replay buffer. Telemetry
// keeps queueing in the source channel meanwhile. Cancelling ctx abandons
// the save.
func (o *Orchestrator) save(ctx context.Context, b Backend, reason string) {
	o.metrics.IncTriggers()
	delay := time.Duration(o.config.Delay()) * time.Second
	o.log.Info("replay triggered", slog.String("trigger", reason), slog.Duration("delay", delay))

	select {
	case <-ctx.Done():
		o.log.Info("replay save abandoned", slog.String("trigger", reason))
		return
	case <-o.after(delay):
	}

	if err := b.SaveBuffer(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrSaveBuffer, err)
		o.metrics.IncSaveFailures()
		o.log.Error("replay save failed", slog.String("trigger", reason), slog.String("error", err.Error()))
		return
	}
	o.metrics.IncSaves()
	o.log.Debug("replay save requested", slog.String("trigger", reason))
}

// forward hands backend save events to the playlist manager until events
// closes or ctx is done.
func (o *Orchestrator) forward(ctx context.Context, events <-chan obs.SaveEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.log.Info("replay saved", slog.String("path", ev.Path))
			if o.clips == nil {
				continue
			}
			select {
			case o.clips <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
