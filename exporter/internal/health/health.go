package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
)

// Server publishes store health over gRPC. It implements
// orchestrator.Observer.
type Server struct {
	hs   *health.Server
	grpc *grpc.Server
}

var _ orchestrator.Observer = (*Server)(nil)

// New returns a Server whose overall status is NOT_SERVING until SetReady.
func New() *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{hs: hs, grpc: gs}
}

// ServiceName is the health service of one store.
func ServiceName(storeID string) string { return "store/" + storeID }

// SetReady flips the overall status.
func (s *Server) SetReady(ready bool) {
	s.hs.SetServingStatus("", servingStatus(ready))
}

// ObserveCycle marks the store serving when every branch succeeded.
func (s *Server) ObserveCycle(res orchestrator.CycleResult) {
	s.hs.SetServingStatus(ServiceName(res.StoreID), servingStatus(res.Success))
}

// ObserveProbe marks the store serving when the probe succeeded.
func (s *Server) ObserveProbe(storeID string, up bool, _ time.Time) {
	s.hs.SetServingStatus(ServiceName(storeID), servingStatus(up))
}

// Check returns the status of service.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// ListenAndServe serves on addr until ctx is cancelled, then marks every
// service NOT_SERVING and stops gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.hs.Shutdown()
		s.grpc.GracefulStop()
	}()

	slog.Info("health: gRPC service listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("health: serve: %w", err)
	}
	return nil
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
