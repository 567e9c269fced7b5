package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/maowbot/maowbot/config"
	"github.com/maowbot/maowbot/internal/autostart"
	"github.com/maowbot/maowbot/internal/credential"
	"github.com/maowbot/maowbot/internal/dispatch"
	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/eventbus"
	"github.com/maowbot/maowbot/internal/maintenance"
	"github.com/maowbot/maowbot/internal/pipeline"
	"github.com/maowbot/maowbot/internal/platform"
	"github.com/maowbot/maowbot/internal/platform/discord"
	"github.com/maowbot/maowbot/internal/platform/eventsub"
	"github.com/maowbot/maowbot/internal/platform/obs"
	"github.com/maowbot/maowbot/internal/platform/twitchirc"
	"github.com/maowbot/maowbot/internal/platform/vrchat"
	"github.com/maowbot/maowbot/internal/plugin"
	"github.com/maowbot/maowbot/internal/registry"
	grpcsrv "github.com/maowbot/maowbot/internal/server/grpc"
	"github.com/maowbot/maowbot/internal/store/postgres"
)

// mailboxBuffer bounds how many unconsumed events a single eventbus
// subscriber may queue before Publish blocks.
const mailboxBuffer = 256

// ProvideLogger builds the process-wide structured logger. Every
// component threads this same *slog.Logger through rather than calling
// slog's package-level default, so log output stays attributable to the
// component that produced it via consistent key/value pairs.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// ProvideEventBus builds the shared event bus (C1).
func ProvideEventBus(log *slog.Logger) *eventbus.Bus {
	return eventbus.New(log, mailboxBuffer)
}

// ProvideStore opens the Postgres connection pool and runs schema
// migrations. It's the single concrete store satisfying
// credential.Repository, autostart.Repository, dispatch.Repository,
// dispatch.CredentialAccounts, and maintenance.Repository.
func ProvideStore(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.Open(cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ProvideCredentialStore builds the credential store (C2).
func ProvideCredentialStore(db *postgres.DB) (*credential.Store, error) {
	return credential.New(db)
}

// ProvidePlatformManager builds the platform manager (C4), registering
// every connector package's factory under its event.Platform key.
func ProvidePlatformManager(bus *eventbus.Bus, creds *credential.Store, log *slog.Logger) *platform.Manager {
	factories := map[string]func(*model.PlatformCredential) platform.ConnectorFactory{
		string(event.PlatformTwitchIRC): func(cred *model.PlatformCredential) platform.ConnectorFactory {
			return twitchirc.New(cred, cred.AdditionalData["channel"], log)
		},
		string(event.PlatformTwitchEventSub): eventsub.New,
		string(event.PlatformDiscord):        discord.New,
		string(event.PlatformVRChat):         vrchat.New,
		string(event.PlatformOBS):            obs.New,
	}
	return platform.NewManager(bus, creds, factories, log)
}

// ProvideDispatcher builds the command/redeem dispatcher (C10). Every
// command/redeem responds through the bot's own configured account name
// unless it names a respond_with_credential.
func ProvideDispatcher(db *postgres.DB, pm *platform.Manager, cfg *config.Config, log *slog.Logger) (*dispatch.Dispatcher, error) {
	broadcasterAccount := func(string) string { return cfg.BotName }
	return dispatch.New(db, pm, db, broadcasterAccount, dispatch.NewTemplateCommandExecutor(), dispatch.NewTemplateRedeemExecutor(), log)
}

// ProvideRegistry builds the handler registry (C5).
func ProvideRegistry() *registry.Registry {
	return registry.New()
}

// ProvidePipeline builds the event pipeline (C6), registering the
// dispatcher as a handler against chat messages and redemption events
// and installing the default pipeline definitions that route to it.
func ProvidePipeline(reg *registry.Registry, d *dispatch.Dispatcher, log *slog.Logger) (*pipeline.Pipeline, error) {
	const (
		chatHandlerID   = "dispatch.chat"
		redeemHandlerID = "dispatch.redeem"
	)

	handlers := map[string]pipeline.HandlerFunc{
		chatHandlerID: func(ctx context.Context, ev event.BotEvent) error {
			msg, ok := ev.(*event.ChatMessage)
			if !ok {
				return nil
			}
			return d.HandleChatMessage(ctx, msg)
		},
		redeemHandlerID: func(ctx context.Context, ev event.BotEvent) error {
			es, ok := ev.(*event.TwitchEventSub)
			if !ok {
				return nil
			}
			return d.HandleRedemption(ctx, es)
		},
	}

	if err := reg.Register(model.HandlerRegistration{
		ID:         chatHandlerID,
		Name:       "command dispatch",
		EventTypes: map[string]struct{}{event.TypeChatMessage: {}},
		Priority:   100,
		Enabled:    true,
	}); err != nil {
		return nil, err
	}
	if err := reg.Register(model.HandlerRegistration{
		ID:         redeemHandlerID,
		Name:       "redeem dispatch",
		EventTypes: map[string]struct{}{event.TypeTwitchEventSub: {}},
		Priority:   100,
		Enabled:    true,
	}); err != nil {
		return nil, err
	}

	p := pipeline.New(reg, handlers, log)
	if err := p.AddDefinition(model.PipelineDefinition{
		ID:         "chat-commands",
		EventTypes: map[string]struct{}{event.TypeChatMessage: {}},
		HandlerIDs: []string{chatHandlerID},
	}); err != nil {
		return nil, err
	}
	if err := p.AddDefinition(model.PipelineDefinition{
		ID:         "channel-point-redeems",
		EventTypes: map[string]struct{}{event.TypeTwitchEventSub: {}},
		HandlerIDs: []string{redeemHandlerID},
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// ProvideMaintenanceTask builds the maintenance task (C8).
func ProvideMaintenanceTask(db *postgres.DB, cfg *config.Config, log *slog.Logger) *maintenance.Task {
	return maintenance.New(db, log, maintenance.WithRetention(cfg.MaintenanceRetention))
}

// ProvideAutostart builds the autostart coordinator (C9).
func ProvideAutostart(db *postgres.DB, pm *platform.Manager, log *slog.Logger) *autostart.Coordinator {
	return autostart.New(db, pm, log)
}

// ProvidePluginManager builds the plugin manager (C7).
func ProvidePluginManager(bus *eventbus.Bus, cfg *config.Config, log *slog.Logger) *plugin.Manager {
	return plugin.NewManager(bus, cfg.PluginPassphrase, cfg.BotName, log)
}

// ProvideGRPCServer builds the TLS-terminated gRPC server hosting the
// plugin RPC service.
func ProvideGRPCServer(cfg *config.Config, log *slog.Logger) (*grpcsrv.Server, error) {
	return grpcsrv.New(cfg.ServerAddr, cfg.CertDir, log)
}
