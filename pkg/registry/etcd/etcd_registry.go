package etcd

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultRootPath = "/go-naming/services"
	defaultLeaseTTL = 30 * time.Second
)

type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	RootPath    string
	LeaseTTL    time.Duration // 实例未声明 TTL 检查时使用的租约时长
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

// EtcdRegistry 每个实例一个带租约的 key：<root>/<service>/<host:port>，
// 一致性索引取 etcd 的全局 revision。
type EtcdRegistry struct {
	cli      *clientv3.Client
	rootPath string
	leaseTTL time.Duration

	mu     sync.Mutex
	leases map[string]lease // serviceID -> 租约
}

func NewEtcdRegistry(cfg Config) (*EtcdRegistry, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, errs.WithCode(errs.Wrap(err, "create etcd client"), errs.ErrorRegistry)
	}
	return newWithClient(cli, cfg), nil
}

func newWithClient(cli *clientv3.Client, cfg Config) *EtcdRegistry {
	root := strings.TrimRight(cfg.RootPath, "/")
	if root == "" {
		root = DefaultRootPath
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &EtcdRegistry{
		cli:      cli,
		rootPath: root,
		leaseTTL: ttl,
		leases:   make(map[string]lease),
	}
}

func (e *EtcdRegistry) Name() string {
	return "etcd"
}

func (e *EtcdRegistry) prefix(serviceName string) string {
	return e.rootPath + "/" + strings.Trim(serviceName, "/") + "/"
}

func (e *EtcdRegistry) key(info *registry.ServiceInfo) string {
	return e.prefix(info.Name) + info.Address()
}

func (e *EtcdRegistry) Register(ctx context.Context, info *registry.ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	val, err := json.Marshal(registry.InstanceOf(info))
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "marshal instance"), errs.ErrorInternal)
	}
	ttl := e.leaseTTL
	if info.Check != nil && info.Check.TTL > 0 {
		ttl = info.Check.TTL
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	leaseResp, err := e.cli.Grant(ctx, seconds)
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "etcd grant lease"), errs.ErrorRegistry)
	}
	key := e.key(info)
	if _, err = e.cli.Put(ctx, key, string(val), clientv3.WithLease(leaseResp.ID)); err != nil {
		_, _ = e.cli.Revoke(context.Background(), leaseResp.ID)
		return errs.WithCode(errs.Wrap(err, "etcd put "+key), errs.ErrorRegistry)
	}

	// 续约跟随注册中心生命周期，而不是本次调用的 ctx
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := e.cli.KeepAlive(kaCtx, leaseResp.ID)
	if err != nil {
		cancel()
		_, _ = e.cli.Delete(context.Background(), key)
		_, _ = e.cli.Revoke(context.Background(), leaseResp.ID)
		return errs.WithCode(errs.Wrap(err, "etcd keepalive"), errs.ErrorRegistry)
	}
	go func() {
		for range ch {
		}
		if kaCtx.Err() == nil {
			logger.Warnw(kaCtx, "etcd lease keepalive stopped", "key", key)
		}
	}()

	e.mu.Lock()
	old, ok := e.leases[info.ID()]
	e.leases[info.ID()] = lease{id: leaseResp.ID, cancel: cancel}
	e.mu.Unlock()
	if ok {
		old.cancel()
		_, _ = e.cli.Revoke(context.Background(), old.id)
	}
	return nil
}

func (e *EtcdRegistry) Unregister(ctx context.Context, info *registry.ServiceInfo) error {
	e.mu.Lock()
	l, ok := e.leases[info.ID()]
	delete(e.leases, info.ID())
	e.mu.Unlock()
	if ok {
		l.cancel()
	}

	key := e.key(info)
	if _, err := e.cli.Delete(ctx, key); err != nil {
		return errs.WithCode(errs.Wrap(err, "etcd delete "+key), errs.ErrorRegistry)
	}
	if ok {
		_, _ = e.cli.Revoke(ctx, l.id)
	}
	return nil
}

func (e *EtcdRegistry) ListInstances(ctx context.Context, serviceName string) ([]*registry.ServiceInstance, uint64, error) {
	prefix := e.prefix(serviceName)
	resp, err := e.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "etcd get "+prefix), errs.ErrorRegistry)
	}
	instances := make([]*registry.ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst registry.ServiceInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			logger.Warnw(ctx, "skip malformed etcd instance", "key", string(kv.Key), "error", err)
			continue
		}
		instances = append(instances, &inst)
	}
	return instances, uint64(resp.Header.Revision), nil
}

// BlockingQuery 从 index+1 开始 watch 前缀，收到事件或超过 wait 后重新读取
func (e *EtcdRegistry) BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*registry.ServiceInstance, uint64, error) {
	if index > 0 {
		wctx, cancel := context.WithTimeout(ctx, wait)
		wch := e.cli.Watch(clientv3.WithRequireLeader(wctx), e.prefix(serviceName),
			clientv3.WithPrefix(), clientv3.WithRev(int64(index)+1))
		select {
		case <-wch:
			// 有事件、被压缩或出错都回落到全量读取
		case <-wctx.Done():
		}
		cancel()
		if err := ctx.Err(); err != nil {
			return nil, 0, errs.WithCode(errs.Wrap(err, "etcd watch "+serviceName), errs.ErrorRegistry)
		}
	}
	return e.ListInstances(ctx, serviceName)
}

// Close 停止续约并关闭客户端，已注册实例随租约过期摘除
func (e *EtcdRegistry) Close() error {
	e.mu.Lock()
	for id, l := range e.leases {
		l.cancel()
		delete(e.leases, id)
	}
	e.mu.Unlock()
	if err := e.cli.Close(); err != nil {
		return errs.WithCode(errs.Wrap(err, "close etcd client"), errs.ErrorRegistry)
	}
	return nil
}
