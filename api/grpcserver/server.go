// Package grpcserver exposes the node's health over gRPC.
//
// The server reports NOT_SERVING while the ownership tracker has exhausted
// its control block budget, so load balancers stop sending work that would
// need new ownership groups.
package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"rc/domain/ownership"
)

// ServiceName is the health service name reporting the tracker budget.
const ServiceName = "rc.ownership"

// Server wraps a grpc.Server with the health and reflection services.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	tracker *ownership.Tracker
	log     zerolog.Logger
}

func NewServer(tracker *ownership.Tracker, log zerolog.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:    grpc.NewServer(opts...),
		health:  health.NewServer(),
		tracker: tracker,
		log:     log.With().Str("component", "grpc").Logger(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.Refresh()
	return s
}

// GRPC exposes the underlying server for registering more services.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Refresh recomputes the serving status from the tracker and returns it.
func (s *Server) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.tracker.Exhausted() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch refreshes the status every interval until ctx is done, logging
// transitions.
func (s *Server) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if cur := s.Refresh(); cur != last {
				stats := s.tracker.Stats()
				s.log.Warn().
					Stringer("status", cur).
					Int64("live", stats.Live).
					Int64("max_live", stats.MaxLive).
					Msg("serving status changed")
				last = cur
			}
		}
	}
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC serving")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.log.Info().Msg("gRPC stopped")
}
