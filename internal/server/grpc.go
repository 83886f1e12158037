// Package server builds and runs the gRPC server hosting the credential service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "identity-portal/internal/health/handler"
	identityhandler "identity-portal/internal/identity/handler"
	"identity-portal/internal/logging"
	"identity-portal/internal/server/interceptors"
	"identity-portal/internal/session"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	// Flows serves CredentialService. If nil, its flow RPCs return Unimplemented.
	Flows identityhandler.CredentialFlows
	// Sessions validates and refreshes bearer session tokens. Required.
	Sessions *session.Manager
	// Pinger backs the health service (e.g. the store). If nil, the server always reports SERVING.
	Pinger healthhandler.Pinger
	// FederationKey authenticates the frontend allowed to call FederatedSignIn.
	FederationKey string
	Log           logging.Logger
}

// Server hosts the credential and health services.
type Server struct {
	grpc   *grpc.Server
	health *healthhandler.Checker
	log    logging.Logger
}

// New builds the gRPC server and registers its services.
//
// Service → handler mapping:
//   - portal.identity.v1.CredentialService → internal/identity/handler
//   - grpc.health.v1.Health                 → internal/health/handler
func New(deps Deps) *Server {
	log := logging.OrDiscard(deps.Log)
	public := identityhandler.PublicMethods()
	public[healthCheckMethod] = true
	public["/grpc.health.v1.Health/List"] = true

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AccessLogUnary(log, map[string]bool{healthCheckMethod: true}),
			interceptors.SessionUnary(deps.Sessions, public, log),
		),
	)
	identityhandler.RegisterCredentialServiceServer(gs, identityhandler.NewServer(deps.Flows, deps.FederationKey, log))
	checker := healthhandler.NewChecker(deps.Pinger, log, identityhandler.ServiceName)
	checker.Register(gs)
	return &Server{grpc: gs, health: checker, log: log}
}

// Serve serves on lis until ctx is done, then drains in-flight RPCs.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	hctx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go s.health.Run(hctx)

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "gRPC server listening", "addr", lis.Addr().String())
		serveErr <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.log.Info(context.WithoutCancel(ctx), "shutting down gRPC server")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Run listens on addr and serves until ctx is done.
func Run(ctx context.Context, addr string, deps Deps) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return New(deps).Serve(ctx, lis)
}
