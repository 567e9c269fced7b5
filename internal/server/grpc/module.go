package grpc

import (
	"context"

	"go.uber.org/fx"

	"github.com/maowbot/maowbot/internal/plugin"
	"github.com/maowbot/maowbot/internal/pluginrpc"
)

// Module wires the gRPC server and registers the plugin RPC service (C7)
// against it, mirroring the teacher's registration-by-fx.Invoke shape
// (internal/handler/grpc/module.go).
var Module = fx.Module("server-grpc",
	fx.Invoke(registerPluginService),
	fx.Invoke(runServer),
)

func registerPluginService(server *Server, manager *plugin.Manager) {
	pluginrpc.RegisterPluginServiceServer(server.Server, manager)
}

func runServer(lc fx.Lifecycle, server *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return server.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return server.Stop(ctx) },
	})
}
