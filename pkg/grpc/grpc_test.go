package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/code-sigs/go-naming/pkg/naming"
	"github.com/code-sigs/go-naming/pkg/registry/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "grpc.health.v1.Health"

func TestGRPC_ListenAndRegister(t *testing.T) {
	ns, err := naming.New(memory.NewMemoryRegistry(),
		naming.WithWaitTime(200*time.Millisecond),
		naming.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	defer ns.Destroy(context.Background())

	g := New(ns)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- g.ListenAndRegister(ctx, healthService, "127.0.0.1", 0, func(s *grpc.Server, addr string) {
			healthpb.RegisterHealthServer(s, health.NewServer())
		}, WithTags("grpc"), WithMetadata(map[string]string{"zone": "a"}))
	}()

	lookup := func() []naming.ServiceInstance {
		instances, err := ns.Lookup(context.Background(), naming.SubscribeInfo{InterfaceName: healthService})
		require.NoError(t, err)
		return instances
	}
	require.Eventually(t, func() bool { return len(lookup()) == 1 }, 2*time.Second, 10*time.Millisecond)

	owned := ns.OwnedInstances()
	require.Len(t, owned, 1)
	assert.Equal(t, []string{"grpc"}, owned[0].Tags)
	assert.Equal(t, "a", owned[0].Metadata["zone"])

	conn, err := g.GetRPConnection(healthService)
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{}, grpc.WaitForReady(true))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Empty(t, lookup())
}
