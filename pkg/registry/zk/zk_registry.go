package zk

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	"github.com/go-zookeeper/zk"
)

const DefaultRootPath = "/go-naming/services"

type Config struct {
	Servers        []string
	RootPath       string
	SessionTimeout time.Duration
}

// ZkRegistry 实例是 <root>/<service>/<host:port> 临时节点，数据为 JSON。
// 一致性索引取服务节点的 Cversion+1，节点不存在时为 0。
type ZkRegistry struct {
	conn     *zk.Conn
	rootPath string

	mu      sync.Mutex
	owned   map[string][]byte          // 本进程注册的节点，会话过期后重建
	watches map[string]<-chan zk.Event // 尚未触发的子节点 watch，按路径复用
	closed  chan struct{}
	once    sync.Once
}

type zkLogger struct{}

func (zkLogger) Printf(format string, args ...any) {
	logger.Debugf(context.Background(), "zk: "+format, args...)
}

func NewZkRegistry(cfg Config) (*ZkRegistry, error) {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	root := "/" + strings.Trim(cfg.RootPath, "/")
	if root == "/" {
		root = DefaultRootPath
	}
	conn, events, err := zk.Connect(cfg.Servers, cfg.SessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, errs.WithCode(errs.Wrap(err, "connect zookeeper"), errs.ErrorRegistry)
	}
	z := &ZkRegistry{
		conn:     conn,
		rootPath: root,
		owned:    make(map[string][]byte),
		watches:  make(map[string]<-chan zk.Event),
		closed:   make(chan struct{}),
	}
	go z.watchSession(events)
	return z, nil
}

func (z *ZkRegistry) Name() string {
	return "zookeeper"
}

func (z *ZkRegistry) servicePath(service string) string {
	return z.rootPath + "/" + strings.Trim(service, "/")
}

func (z *ZkRegistry) instancePath(info *registry.ServiceInfo) string {
	return z.servicePath(info.Name) + "/" + info.Address()
}

// ensurePath 逐级创建持久节点
func (z *ZkRegistry) ensurePath(p string) error {
	cur := ""
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		cur += "/" + part
		_, err := z.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

func (z *ZkRegistry) createEphemeral(p string, data []byte) error {
	if err := z.conn.Delete(p, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return err
	}
	_, err := z.conn.Create(p, data, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	return err
}

func (z *ZkRegistry) Register(ctx context.Context, info *registry.ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	data, err := json.Marshal(registry.InstanceOf(info))
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "marshal instance"), errs.ErrorInternal)
	}
	if err := z.ensurePath(z.servicePath(info.Name)); err != nil {
		return errs.WithCode(errs.Wrap(err, "zk create "+z.servicePath(info.Name)), errs.ErrorRegistry)
	}
	p := z.instancePath(info)
	if err := z.createEphemeral(p, data); err != nil {
		return errs.WithCode(errs.Wrap(err, "zk create "+p), errs.ErrorRegistry)
	}
	z.mu.Lock()
	z.owned[p] = data
	z.mu.Unlock()
	return nil
}

func (z *ZkRegistry) Unregister(ctx context.Context, info *registry.ServiceInfo) error {
	p := z.instancePath(info)
	z.mu.Lock()
	delete(z.owned, p)
	z.mu.Unlock()
	if err := z.conn.Delete(p, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errs.WithCode(errs.Wrap(err, "zk delete "+p), errs.ErrorRegistry)
	}
	return nil
}

func (z *ZkRegistry) ListInstances(ctx context.Context, serviceName string) ([]*registry.ServiceInstance, uint64, error) {
	sp := z.servicePath(serviceName)
	children, stat, err := z.conn.Children(sp)
	if errors.Is(err, zk.ErrNoNode) {
		return []*registry.ServiceInstance{}, 0, nil
	}
	if err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "zk children "+sp), errs.ErrorRegistry)
	}
	return z.readInstances(ctx, sp, children), uint64(stat.Cversion) + 1, nil
}

func (z *ZkRegistry) readInstances(ctx context.Context, sp string, children []string) []*registry.ServiceInstance {
	instances := make([]*registry.ServiceInstance, 0, len(children))
	for _, child := range children {
		data, _, err := z.conn.Get(path.Join(sp, child))
		if err != nil {
			// 读子节点期间被删除
			continue
		}
		var inst registry.ServiceInstance
		if err := json.Unmarshal(data, &inst); err != nil || inst.Port == 0 {
			host, port, perr := registry.ParseAddress(child)
			if perr != nil {
				logger.Warnw(ctx, "skip malformed zk instance", "path", path.Join(sp, child))
				continue
			}
			inst = registry.ServiceInstance{Host: host, Port: port}
		}
		instances = append(instances, &inst)
	}
	return instances
}

// childrenW 复用同一路径上还没触发的 watch
func (z *ZkRegistry) childrenW(sp string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	z.mu.Lock()
	ch, ok := z.watches[sp]
	z.mu.Unlock()
	if ok {
		select {
		case <-ch:
		default:
			children, stat, err := z.conn.Children(sp)
			if err == nil {
				return children, stat, ch, nil
			}
		}
	}
	children, stat, ch, err := z.conn.ChildrenW(sp)
	if err != nil {
		return nil, nil, nil, err
	}
	z.mu.Lock()
	z.watches[sp] = ch
	z.mu.Unlock()
	return children, stat, ch, nil
}

func (z *ZkRegistry) BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*registry.ServiceInstance, uint64, error) {
	sp := z.servicePath(serviceName)
	if err := z.ensurePath(sp); err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "zk create "+sp), errs.ErrorRegistry)
	}
	children, stat, events, err := z.childrenW(sp)
	if err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "zk children "+sp), errs.ErrorRegistry)
	}
	current := uint64(stat.Cversion) + 1
	if current != index {
		return z.readInstances(ctx, sp, children), current, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-events:
	case <-timer.C:
	case <-ctx.Done():
		return nil, 0, errs.WithCode(errs.Wrap(ctx.Err(), "zk watch "+sp), errs.ErrorRegistry)
	case <-z.closed:
		return nil, 0, errs.WithCode(errs.New("zookeeper registry closed"), errs.ErrorRegistry)
	}
	return z.ListInstances(ctx, serviceName)
}

// watchSession 会话过期后临时节点会丢失，重连后重建本进程注册的节点
func (z *ZkRegistry) watchSession(events <-chan zk.Event) {
	expired := false
	for {
		select {
		case <-z.closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.State {
			case zk.StateExpired:
				expired = true
				logger.Warnw(context.Background(), "zookeeper session expired")
			case zk.StateHasSession:
				if expired {
					expired = false
					z.restoreOwned()
				}
			}
		}
	}
}

func (z *ZkRegistry) restoreOwned() {
	z.mu.Lock()
	owned := make(map[string][]byte, len(z.owned))
	for p, data := range z.owned {
		owned[p] = data
	}
	z.mu.Unlock()
	for p, data := range owned {
		err := z.ensurePath(path.Dir(p))
		if err == nil {
			err = z.createEphemeral(p, data)
		}
		if err != nil {
			logger.Errorw(context.Background(), "restore zk instance failed", "path", p, "error", err)
		}
	}
}

func (z *ZkRegistry) Close() error {
	z.once.Do(func() {
		close(z.closed)
		z.conn.Close()
	})
	return nil
}
