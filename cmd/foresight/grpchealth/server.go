// Package grpchealth serves the standard grpc.health.v1 service so
// orchestrators can probe foresight over gRPC.
package grpchealth

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name reported alongside the overall ("")
// status.
const Service = "foresight.proactive"

// Server is a gRPC server exposing only health and reflection.
type Server struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New creates a server that starts in NOT_SERVING. A non-nil tlsCfg enables
// TLS on every connection.
func New(tlsCfg *tls.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []grpc.ServerOption{grpc.ConnectionTimeout(30 * time.Second)}
	if tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	reflection.Register(s)

	srv := &Server{server: s, health: hs, logger: logger}
	srv.SetServing(false)
	return srv
}

// SetServing flips the overall and service status between SERVING and
// NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	s.logger.Debug("grpc health status", "status", status.String())
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting gRPC health server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil {
		return fmt.Errorf("grpc server failed: %w", err)
	}
	return nil
}

// Stop marks the service NOT_SERVING and drains connections, forcing the
// stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.logger.Info("stopping gRPC health server", "timeout", timeout)
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC health server stopped gracefully")
	case <-time.After(timeout):
		s.logger.Warn("gRPC health server forced to stop after timeout")
		s.server.Stop()
	}
}
