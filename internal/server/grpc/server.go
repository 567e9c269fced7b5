/*
Package grpc hosts the plugin RPC surface (C7) behind TLS: a self-signed
certificate is bootstrapped under certs/ on first boot per the
process-level configuration contract, and every registered service is
served over google.golang.org/grpc with a custom JSON codec (see
internal/pluginrpc) standing in for protobuf wire encoding.
*/
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/maowbot/maowbot/internal/errs"
)

// Server wraps the underlying *grpc.Server so fx constructors in other
// packages can register services against it before Start is invoked.
type Server struct {
	Server *grpc.Server

	addr    string
	certDir string
	log     *slog.Logger
	lis     net.Listener
}

// New builds a Server bound to addr (e.g. ":50051"), generating or
// loading the TLS certificate under certDir.
func New(addr, certDir string, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	cert, err := loadOrGenerateCert(certDir)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
	return &Server{
		Server:  grpc.NewServer(grpc.Creds(creds)),
		addr:    addr,
		certDir: certDir,
		log:     log,
	}, nil
}

// Start begins listening and serving in the background. It returns once
// the listener is bound; Serve errors are logged, not returned, since
// they surface after this call has already returned control to the
// fx.Lifecycle hook.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errs.Wrap(errs.Io, err, fmt.Sprintf("grpc: listen on %s", s.addr))
	}
	s.lis = lis

	go func() {
		if err := s.Server.Serve(lis); err != nil {
			s.log.Error("GRPC_SERVE_FAILED", "error", err)
		}
	}()

	s.log.Info("GRPC_LISTENING", "addr", s.addr)
	return nil
}

// Stop gracefully drains in-flight RPCs and stops serving.
func (s *Server) Stop(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.Server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.Server.Stop()
		return ctx.Err()
	}
}
