package debugsrv

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func freeAddr(t *testing.T) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

func TestServer_MetricsEndpointServes(t *testing.T) {
	httpAddr := freeAddr(t)

	s, err := New(Config{ListenAddress: httpAddr, MetricsEnabled: true}, slog.Default(), nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + httpAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_GRPCHealthReflectsLeadership(t *testing.T) {
	httpAddr := freeAddr(t)
	grpcAddr := freeAddr(t)

	leader := false
	s, err := New(Config{ListenAddress: httpAddr, GRPCListenAddress: grpcAddr}, slog.Default(), func() bool { return leader })
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	leader = true

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)
}
