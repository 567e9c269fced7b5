package cmd

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/maowbot/maowbot/config"
	"github.com/maowbot/maowbot/internal/autostart"
	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/eventbus"
	"github.com/maowbot/maowbot/internal/maintenance"
	"github.com/maowbot/maowbot/internal/pipeline"
	"github.com/maowbot/maowbot/internal/store/postgres"
)

// runPipeline subscribes the event pipeline to every event type it
// routes and evaluates each event as it arrives, one goroutine per
// subscribed type per the bus's per-subscriber ordering guarantee.
func runPipeline(lc fx.Lifecycle, bus *eventbus.Bus, p *pipeline.Pipeline, log *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			for _, eventType := range []string{event.TypeChatMessage, event.TypeTwitchEventSub} {
				ch, err := bus.Subscribe(ctx, eventType)
				if err != nil {
					return err
				}
				go func(eventType string, ch <-chan event.BotEvent) {
					for ev := range ch {
						if err := p.Evaluate(ctx, ev); err != nil {
							log.Error("PIPELINE_EVALUATE_FAILED", "event_type", eventType, "error", err)
						}
					}
				}(eventType, ch)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// runAutostart kicks off the boot-time autostart sequence (C9) once the
// app has finished starting, so every other fx-provided dependency it
// needs (the platform manager) is already live.
func runAutostart(lc fx.Lifecycle, coord *autostart.Coordinator, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := coord.RunAutostart(context.Background()); err != nil {
					log.Error("AUTOSTART_FAILED", "error", err)
				}
			}()
			return nil
		},
	})
}

// runMaintenance starts the maintenance task's cron schedule (C8). It
// runs against its own context, independent of the OnStart context fx
// cancels once startup finishes, and stops when the app does.
func runMaintenance(lc fx.Lifecycle, task *maintenance.Task, cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return task.Start(ctx, cfg.MaintenanceSchedule)
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// closeStore releases the Postgres pool on shutdown.
func closeStore(lc fx.Lifecycle, db *postgres.DB) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
}
