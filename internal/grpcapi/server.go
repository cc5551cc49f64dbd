package grpcapi

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"dupulse.app/internal/auth"
	"dupulse.app/internal/obs"
)

// ServiceName is reported by the health service alongside the overall status.
const ServiceName = "dupulse.admin"

// Readiness is checked before the health status is refreshed.
type Readiness interface {
	Check(ctx context.Context) error
}

// Server is the gRPC surface: health plus the admin gate on everything else.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	readiness Readiness
}

// NewServer builds a gRPC server with the admin interceptors installed.
// Extra options are appended after the interceptors.
func NewServer(gate *auth.Gate, r Readiness, opts ...grpc.ServerOption) (*Server, error) {
	if gate == nil {
		return nil, errors.New("grpcapi: gate is required")
	}
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryAdminInterceptor(gate)),
		grpc.ChainStreamInterceptor(StreamAdminInterceptor(gate)),
	}
	s := &Server{
		grpc:      grpc.NewServer(append(base, opts...)...),
		health:    health.NewServer(),
		readiness: r,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

// GRPC exposes the underlying server so more services can be registered.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Refresh checks readiness and publishes the result on the health service.
func (s *Server) Refresh(ctx context.Context) bool {
	ok := true
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			obs.Warn("grpc readiness failed", map[string]any{"error": err.Error()})
			ok = false
		}
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	obs.SetReady(ok)
	return ok
}

// Watch refreshes the health status every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		s.Refresh(checkCtx)
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
