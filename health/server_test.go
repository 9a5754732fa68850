package health

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialBufconn(t *testing.T, lis *bufconn.Listener) grpc_health_v1.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func TestServerReportsProbe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	probe := func(context.Context) Status {
		if healthy.Load() {
			return Healthy("ok")
		}
		return Unhealthy("queue is unreachable", nil)
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, probe, ServerOptions{Service: "dropkeys", Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	client := dialBufconn(t, lis)
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()

	for _, service := range []string{"", "dropkeys"} {
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	}

	healthy.Store(false)
	status := srv.Update(callCtx)
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, status, srv.Last())

	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: "dropkeys"})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDegradedIsServing(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, func(context.Context) Status {
		return Degraded("registry is unreachable", nil)
	}, ServerOptions{})

	status := srv.Update(context.Background())
	assert.True(t, status.IsDegraded())

	resp, err := srv.HealthServer().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestListen(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", func(context.Context) Status { return Healthy("") }, ServerOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, srv.Addr().String())
	srv.GracefulStop()
	_ = srv.listener.Close()

	_, err = Listen("256.0.0.1:bad", nil, ServerOptions{})
	assert.Error(t, err)
}
