package leader

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestStaticOracle_AlwaysLeader(t *testing.T) {
	o := NewStaticOracle()
	require.True(t, o.IsLeader())
	require.NoError(t, o.Close())
}

func TestHealthPollOracle_TracksRemoteHealthStatus(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	go grpcSrv.Serve(lis)
	defer grpcSrv.Stop()

	logger := slog.Default()
	oracle, err := NewHealthPollOracle(lis.Addr().String(), 50*time.Millisecond, logger)
	require.NoError(t, err)
	defer oracle.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go oracle.Watch(ctx)

	require.Eventually(t, func() bool {
		return !oracle.IsLeader()
	}, time.Second, 10*time.Millisecond, "should observe NOT_SERVING")

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	require.Eventually(t, func() bool {
		return oracle.IsLeader()
	}, time.Second, 10*time.Millisecond, "should observe SERVING after status flips")
}
