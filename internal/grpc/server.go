package grpc

import (
	"fmt"
	"net"

	"github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes can check in addition to "".
const ServiceName = "puzzle.live"

// Server exposes grpc.health.v1.Health for the puzzle room service.
type Server struct {
	server *grpc.Server
	health *health.Server
}

// NewServer creates a server that reports SERVING until Shutdown.
func NewServer(logger zerolog.Logger) *Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{server: s, health: hs}
}

// Serve blocks until the listener fails or the server stops.
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// ListenAndServe listens on addr and serves until the server stops.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := log.L()
	l.Info().Str("address", addr).Msg("grpc health server listening")
	return s.Serve(lis)
}

// SetServing flips the reported status of every service.
func (s *Server) SetServing(serving bool) {
	if serving {
		s.health.Resume()
		return
	}
	s.health.Shutdown()
}

// Shutdown reports NOT_SERVING, then waits for in-flight calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
