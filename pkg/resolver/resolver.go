package resolver

import (
	"context"
	"sort"
	"sync"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/naming"
	"google.golang.org/grpc/resolver"
)

const DefaultScheme = "naming"

// namingResolver 订阅服务成员变更，把当前地址集合推给 gRPC
type namingResolver struct {
	cc     resolver.ClientConn
	naming *naming.NamingService
	info   naming.SubscribeInfo

	mu      sync.Mutex
	addrs   map[naming.ServiceInstance]struct{}
	seeded  bool // 已推送过初始状态
	watched bool // 已收到订阅的首次全量通知
	closed  bool
}

type ServiceResolverBuilder struct {
	Naming *naming.NamingService
	scheme string
}

// NewBuilder 目标形如 naming:///com.example.EchoService
func NewBuilder(ns *naming.NamingService) *ServiceResolverBuilder {
	return NewBuilderWithScheme(ns, DefaultScheme)
}

func NewBuilderWithScheme(ns *naming.NamingService, scheme string) *ServiceResolverBuilder {
	return &ServiceResolverBuilder{Naming: ns, scheme: scheme}
}

func (b *ServiceResolverBuilder) Build(target resolver.Target, cc resolver.ClientConn, opts resolver.BuildOptions) (resolver.Resolver, error) {
	serviceName := target.Endpoint()
	if serviceName == "" {
		return nil, errs.WithCode(errs.Newf("empty service name in target %s", target.String()), errs.ErrorArgs)
	}
	r := &namingResolver{
		cc:     cc,
		naming: b.Naming,
		info:   naming.SubscribeInfo{InterfaceName: serviceName, IgnoreFailOfNamingService: true},
		addrs:  make(map[naming.ServiceInstance]struct{}),
	}
	if err := b.Naming.Subscribe(r.info, r); err != nil {
		return nil, errs.Wrap(err, "subscribe "+serviceName)
	}

	// 空服务不会收到变更通知，先用一次查询给出初始状态
	instances, _ := b.Naming.Lookup(context.Background(), r.info)
	r.mu.Lock()
	if !r.seeded {
		r.seeded = true
		for _, inst := range instances {
			r.addrs[inst] = struct{}{}
		}
		r.pushLocked()
	}
	r.mu.Unlock()
	return r, nil
}

func (b *ServiceResolverBuilder) Scheme() string {
	return b.scheme
}

func (r *namingResolver) Notify(added, removed []naming.ServiceInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.seeded = true
	if !r.watched {
		// 订阅首次通知即全量，覆盖初始查询的结果
		r.watched = true
		clear(r.addrs)
	}
	for _, inst := range removed {
		delete(r.addrs, inst)
	}
	for _, inst := range added {
		r.addrs[inst] = struct{}{}
	}
	r.pushLocked()
}

func (r *namingResolver) pushLocked() {
	addrs := make([]resolver.Address, 0, len(r.addrs))
	for inst := range r.addrs {
		addrs = append(addrs, resolver.Address{Addr: inst.Address()})
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Addr < addrs[j].Addr })
	if err := r.cc.UpdateState(resolver.State{Addresses: addrs}); err != nil {
		logger.Debugw(context.Background(), "resolver state rejected",
			"service", r.info.InterfaceName, "addrs", len(addrs), "error", err)
	}
}

// ResolveNow 成员变更由订阅长轮询推送，无需主动解析
func (r *namingResolver) ResolveNow(resolver.ResolveNowOptions) {}

func (r *namingResolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.naming.Unsubscribe(r.info, r)
}
