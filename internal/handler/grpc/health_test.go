package grpc

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-presence-service/config"
	grpcsrv "github.com/webitel/im-presence-service/infra/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealth_FollowsLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.GRPC.Addr = "127.0.0.1:0"

	srv := grpcsrv.New(cfg, logger)
	hs := NewHealthServer()
	RegisterHealthService(srv, hs)
	reporter := NewHealthReporter(hs, logger)

	require.NoError(t, srv.Listen())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: PresenceServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	require.NoError(t, reporter.OnStart(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	require.NoError(t, reporter.OnStop(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
