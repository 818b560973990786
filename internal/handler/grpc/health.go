package grpc

import (
	"context"
	"log/slog"

	grpcsrv "github.com/webitel/im-presence-service/infra/server/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PresenceServiceName is the health check name load balancers query.
const PresenceServiceName = "im_presence.v1.Presence"

func NewHealthServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(PresenceServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// HealthReporter flips the serving status with the application lifecycle.
type HealthReporter struct {
	health *health.Server
	logger *slog.Logger
}

func NewHealthReporter(hs *health.Server, logger *slog.Logger) *HealthReporter {
	return &HealthReporter{health: hs, logger: logger}
}

func (r *HealthReporter) OnStart(context.Context) error {
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.health.SetServingStatus(PresenceServiceName, healthpb.HealthCheckResponse_SERVING)
	r.logger.Info("HEALTH_SERVING")
	return nil
}

// OnStop answers NOT_SERVING for the rest of the drain and ends open Watch streams.
func (r *HealthReporter) OnStop(context.Context) error {
	r.health.Shutdown()
	return nil
}

func RegisterHealthService(server *grpcsrv.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(server.Server, hs)
}
