package cmd

import (
	"go.uber.org/fx"

	"github.com/maowbot/maowbot/config"
	grpcsrv "github.com/maowbot/maowbot/internal/server/grpc"
)

// NewApp wires every component (C1-C10) into one fx.App: the event bus,
// credential store, platform manager and its five connector factories,
// handler registry, event pipeline, command/redeem dispatcher,
// maintenance task, autostart coordinator, plugin manager, and the TLS
// gRPC server hosting it.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideEventBus,
			ProvideStore,
			ProvideCredentialStore,
			ProvidePlatformManager,
			ProvideDispatcher,
			ProvideRegistry,
			ProvidePipeline,
			ProvideMaintenanceTask,
			ProvideAutostart,
			ProvidePluginManager,
			ProvideGRPCServer,
		),
		fx.Invoke(
			closeStore,
			runPipeline,
			runAutostart,
			runMaintenance,
		),
		grpcsrv.Module,
	)
}
