package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Probe computes the current health of a stage.
type Probe func(ctx context.Context) Status

// ServerOptions configures a health Server.
type ServerOptions struct {
	// Service is the service name reported next to the overall ("") status.
	Service string

	// Interval between probes. Default: 10s
	Interval time.Duration

	// GracefulTimeout bounds GracefulStop before the server is stopped hard.
	// Default: 5s
	GracefulTimeout time.Duration

	// Logger for status changes. Default: slog.Default()
	Logger *slog.Logger
}

// Server serves grpc.health.v1.Health, driven by a Probe.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *grpchealth.Server
	listener     net.Listener
	probe        Probe
	opts         ServerOptions

	mu   sync.Mutex
	last Status
}

// NewServer creates a health server on an existing listener.
func NewServer(lis net.Listener, probe Probe, opts ServerOptions) *Server {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	grpcServer := grpc.NewServer()
	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		listener:     lis,
		probe:        probe,
		opts:         opts,
	}
}

// Listen creates a health server listening on a TCP address.
func Listen(addr string, probe Probe, opts ServerOptions) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewServer(lis, probe, opts), nil
}

// HealthServer returns the underlying grpc health server.
func (s *Server) HealthServer() *grpchealth.Server {
	return s.healthServer
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Last returns the most recent probe result.
func (s *Server) Last() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Update runs the probe once and publishes the result.
func (s *Server) Update(ctx context.Context) Status {
	status := s.probe(ctx)

	serving := grpc_health_v1.HealthCheckResponse_SERVING
	if status.IsUnhealthy() {
		serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.healthServer.SetServingStatus("", serving)
	if s.opts.Service != "" {
		s.healthServer.SetServingStatus(s.opts.Service, serving)
	}

	s.mu.Lock()
	changed := s.last.Status != status.Status
	s.last = status
	s.mu.Unlock()

	if changed {
		s.opts.Logger.InfoContext(ctx, "health status changed",
			"service", s.opts.Service,
			"status", status.Status,
			"message", status.Message)
	}
	return status
}

// Serve probes once, starts serving, and re-probes every Interval until ctx
// is cancelled. It then shuts down gracefully and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.Update(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Update(ctx)
		}
	}
}

// GracefulStop marks every service NOT_SERVING and stops the server,
// forcing it after GracefulTimeout.
func (s *Server) GracefulStop() {
	s.healthServer.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.opts.GracefulTimeout):
		s.opts.Logger.Warn("health server graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
}
