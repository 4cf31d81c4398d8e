package etcd

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtcdRegistry_KeyLayout(t *testing.T) {
	e := newWithClient(nil, Config{RootPath: "/custom/"})
	info := &registry.ServiceInfo{Name: "/com.example.EchoService/", Host: "127.0.0.1", Port: 8012}
	assert.Equal(t, "/custom/com.example.EchoService/", e.prefix(info.Name))
	assert.Equal(t, "/custom/com.example.EchoService/127.0.0.1:8012", e.key(info))

	e = newWithClient(nil, Config{})
	assert.Equal(t, DefaultRootPath+"/svc/", e.prefix("svc"))
	assert.Equal(t, defaultLeaseTTL, e.leaseTTL)
}

// 需要真实 etcd：NAMING_TEST_ETCD=127.0.0.1:2379
func newLiveRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	endpoints := os.Getenv("NAMING_TEST_ETCD")
	if endpoints == "" {
		t.Skip("NAMING_TEST_ETCD not set")
	}
	e, err := NewEtcdRegistry(Config{
		Endpoints: strings.Split(endpoints, ","),
		RootPath:  "/go-naming-test/" + uuid.NewString(),
		LeaseTTL:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEtcdRegistry_Live(t *testing.T) {
	e := newLiveRegistry(t)
	ctx := context.Background()
	info := &registry.ServiceInfo{Name: "EchoService", Host: "127.0.0.1", Port: 8015, Metadata: map[string]string{"zone": "a"}}

	instances, idx, err := e.ListInstances(ctx, "EchoService")
	require.NoError(t, err)
	assert.Empty(t, instances)

	require.NoError(t, e.Register(ctx, info))
	instances, next, err := e.BlockingQuery(ctx, "EchoService", idx, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "127.0.0.1:8015", instances[0].Address())
	assert.Equal(t, "a", instances[0].Metadata["zone"])
	assert.Greater(t, next, idx)

	start := time.Now()
	_, _, err = e.BlockingQuery(ctx, "EchoService", next, 200*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	require.NoError(t, e.Unregister(ctx, info))
	require.NoError(t, e.Unregister(ctx, info))
	instances, _, err = e.ListInstances(ctx, "EchoService")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
