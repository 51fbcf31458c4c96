// Package health serves the standard gRPC health protocol. Each context is
// a service ("quote", "trade"); the empty service name is SERVING only when
// every context is ready.
package health

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"market-gateway/internal/events"
	"market-gateway/pkg/logger"
)

const stateReady = "ready"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// New registers the health and reflection services for the given context
// names, all NOT_SERVING until marked ready.
func New(services []string, log *zap.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    logger.OrNop(log).Named("health"),
		ready:  make(map[string]bool, len(services)),
	}
	for _, name := range services {
		s.ready[name] = false
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// SetReady updates one service and the overall status.
func (s *Server) SetReady(service string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ready[service]; !ok {
		return
	}
	s.ready[service] = ready
	s.health.SetServingStatus(service, servingStatus(ready))

	all := true
	for _, r := range s.ready {
		all = all && r
	}
	s.health.SetServingStatus("", servingStatus(all))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Watch follows connection state changes on the bus until ctx is done.
func (s *Server) Watch(ctx context.Context, bus *events.Bus) {
	stream, unsub := bus.Subscribe(events.EventConnectionState, 64)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if ev, ok := msg.(events.StateChange); ok {
					s.SetReady(ev.Context, ev.State == stateReady)
				}
			}
		}
	}()
}

// Check answers a health query in-process.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks everything NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
