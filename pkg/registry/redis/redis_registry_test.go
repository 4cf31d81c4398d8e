package redis

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

func TestRedisRegistry_Keys(t *testing.T) {
	r := NewWithClient(nil, "naming:")
	assert.Equal(t, "naming:{EchoService}:instances", r.instancesKey("EchoService"))
	assert.Equal(t, "naming:{EchoService}:index", r.indexKey("EchoService"))
	assert.Equal(t, "naming:{EchoService}:changes", r.channel("EchoService"))
	assert.Equal(t, DefaultKeyPrefix, NewWithClient(nil, "").prefix)
}

func TestNewRedisRegistry_EmptyAddress(t *testing.T) {
	_, err := NewRedisRegistry(&RedisConfig{})
	require.Error(t, err)
}

// 需要真实 redis：NAMING_TEST_REDIS=127.0.0.1:6379
func TestRedisRegistry_Live(t *testing.T) {
	addrs := os.Getenv("NAMING_TEST_REDIS")
	if addrs == "" {
		t.Skip("NAMING_TEST_REDIS not set")
	}
	r, err := NewRedisRegistry(&RedisConfig{
		Address:   strings.Split(addrs, ","),
		KeyPrefix: "go-naming-test:" + uuid.NewString(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()
	instances, idx, err := r.ListInstances(ctx, "EchoService")
	require.NoError(t, err)
	assert.Empty(t, instances)
	assert.Zero(t, idx)

	info := &registry.ServiceInfo{Name: "EchoService", Host: "127.0.0.1", Port: 8012}
	require.NoError(t, r.Register(ctx, info))
	instances, idx, err = r.ListInstances(ctx, "EchoService")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, uint64(1), idx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = r.Unregister(context.Background(), info)
	}()
	instances, next, err := r.BlockingQuery(ctx, "EchoService", idx, 5*time.Second)
	require.NoError(t, err)
	assert.Empty(t, instances)
	assert.Equal(t, uint64(2), next)

	// 不存在的实例不会推进索引
	require.NoError(t, r.Unregister(ctx, info))
	_, idx, err = r.ListInstances(ctx, "EchoService")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idx)
}
