package resolver

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/code-sigs/go-naming/pkg/naming"
	"github.com/code-sigs/go-naming/pkg/registry/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/resolver"
)

type fakeClientConn struct {
	resolver.ClientConn

	mu     sync.Mutex
	states []resolver.State
}

func (f *fakeClientConn) UpdateState(s resolver.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return nil
}

func (f *fakeClientConn) ReportError(error) {}

func (f *fakeClientConn) addrs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return nil
	}
	var out []string
	for _, a := range f.states[len(f.states)-1].Addresses {
		out = append(out, a.Addr)
	}
	return out
}

func (f *fakeClientConn) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func newNaming(t *testing.T) *naming.NamingService {
	t.Helper()
	ns, err := naming.New(memory.NewMemoryRegistry(),
		naming.WithWaitTime(200*time.Millisecond),
		naming.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { ns.Destroy(context.Background()) })
	return ns
}

func target(service string) resolver.Target {
	return resolver.Target{URL: url.URL{Scheme: DefaultScheme, Path: "/" + service}}
}

func TestResolver_TracksMembership(t *testing.T) {
	ns := newNaming(t)
	ctx := context.Background()
	require.NoError(t, ns.Register(ctx, &naming.RegisterInfo{InterfaceName: "EchoService", Host: "127.0.0.1", Port: 8015}))

	b := NewBuilder(ns)
	assert.Equal(t, "naming", b.Scheme())
	cc := &fakeClientConn{}
	r, err := b.Build(target("EchoService"), cc, resolver.BuildOptions{})
	require.NoError(t, err)
	defer r.Close()

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"127.0.0.1:8015"}, cc.addrs())
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ns.Register(ctx, &naming.RegisterInfo{InterfaceName: "EchoService", Host: "127.0.0.1", Port: 8016}))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"127.0.0.1:8015", "127.0.0.1:8016"}, cc.addrs())
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ns.Unregister(ctx, &naming.RegisterInfo{InterfaceName: "EchoService", Host: "127.0.0.1", Port: 8015}))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"127.0.0.1:8016"}, cc.addrs())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolver_EmptyServiceGetsInitialState(t *testing.T) {
	ns := newNaming(t)
	cc := &fakeClientConn{}
	r, err := NewBuilder(ns).Build(target("EmptyService"), cc, resolver.BuildOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1, cc.updates())
	assert.Empty(t, cc.addrs())
}

func TestResolver_CloseUnsubscribes(t *testing.T) {
	ns := newNaming(t)
	cc := &fakeClientConn{}
	r, err := NewBuilder(ns).Build(target("EchoService"), cc, resolver.BuildOptions{})
	require.NoError(t, err)
	require.Len(t, ns.Subscriptions(), 1)

	r.Close()
	assert.Empty(t, ns.Subscriptions())

	n := cc.updates()
	require.NoError(t, ns.Register(context.Background(), &naming.RegisterInfo{InterfaceName: "EchoService", Host: "127.0.0.1", Port: 8012}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, cc.updates())
}

func TestResolver_EmptyTarget(t *testing.T) {
	ns := newNaming(t)
	_, err := NewBuilder(ns).Build(resolver.Target{URL: url.URL{Scheme: DefaultScheme}}, &fakeClientConn{}, resolver.BuildOptions{})
	require.Error(t, err)
}
