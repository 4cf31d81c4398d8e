package naming

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
)

// NamingService 命名服务客户端：注册/注销本进程实例、查询、订阅成员变更。
// 注册中心连接归属于传入的 Registry，Destroy 时一并关闭。
type NamingService struct {
	registry registry.Registry
	opts     *Options

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[string]*subscription
	owned         map[ownedKey]*RegisterInfo
	destroyed     bool
	inflight      sync.WaitGroup // 进行中的注册/注销，Destroy 等它们写完已注册集合
}

// New 创建命名服务
func New(reg registry.Registry, opts ...Option) (*NamingService, error) {
	if reg == nil {
		return nil, newArgsError("registry is nil")
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NamingService{
		registry:      reg,
		opts:          o,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*subscription),
		owned:         make(map[ownedKey]*RegisterInfo),
	}, nil
}

// Options 返回当前配置的副本
func (n *NamingService) Options() Options {
	return *n.opts
}

// Registry 底层注册中心网关
func (n *NamingService) Registry() registry.Registry {
	return n.registry
}

// Register 发布实例。重试预算耗尽后返回 RegistrationError。
func (n *NamingService) Register(ctx context.Context, info *RegisterInfo) error {
	if info == nil {
		return registrationError(newArgsError("register info is nil"), "register")
	}
	si := info.serviceInfo(n.opts.HealthCheck)
	if err := si.Validate(); err != nil {
		return registrationError(errs.WithCode(errs.Wrap(err), errs.ErrorArgs), "register")
	}
	if !n.begin() {
		return errClosed
	}
	defer n.inflight.Done()

	err := n.withRetry(ctx, "register", si, func(ctx context.Context) error {
		return n.registry.Register(ctx, si)
	})
	if err != nil {
		return registrationError(err, "register "+si.Address()+" to "+si.Name)
	}

	cp := *info
	n.mu.Lock()
	n.owned[info.key()] = &cp
	n.mu.Unlock()
	logger.Infow(ctx, "service registered", "service", si.Name, "address", si.Address())
	return nil
}

// Unregister 摘除实例，实例本就不存在时也视为成功。
// 注销失败时实例仍保留在已注册集合里，Destroy 时会再次尝试。
func (n *NamingService) Unregister(ctx context.Context, info *RegisterInfo) error {
	if info == nil {
		return registrationError(newArgsError("register info is nil"), "unregister")
	}
	si := info.serviceInfo(nil)
	if !n.begin() {
		return errClosed
	}
	defer n.inflight.Done()

	err := n.withRetry(ctx, "unregister", si, func(ctx context.Context) error {
		return n.registry.Unregister(ctx, si)
	})
	if err != nil {
		return registrationError(err, "unregister "+si.Address()+" from "+si.Name)
	}

	n.mu.Lock()
	delete(n.owned, info.key())
	n.mu.Unlock()
	logger.Infow(ctx, "service unregistered", "service", si.Name, "address", si.Address())
	return nil
}

// begin 登记一次注册/注销，已销毁时返回 false
func (n *NamingService) begin() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return false
	}
	n.inflight.Add(1)
	return true
}

func (n *NamingService) withRetry(ctx context.Context, op string, si *registry.ServiceInfo, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= n.opts.RetryTimes; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(n.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errs.Wrap(ctx.Err(), op+" canceled")
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if errs.HasCode(err, errs.ErrorArgs) {
			return err
		}
		logger.Warnw(ctx, op+" failed", "service", si.Name, "address", si.Address(),
			"attempt", attempt+1, "error", err)
	}
	return err
}

// OwnedInstances 本进程注册过且尚未注销的实例
func (n *NamingService) OwnedInstances() []RegisterInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]RegisterInfo, 0, len(n.owned))
	for _, info := range n.owned {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InterfaceName != out[j].InterfaceName {
			return out[i].InterfaceName < out[j].InterfaceName
		}
		return out[i].key().instance.Address() < out[j].key().instance.Address()
	})
	return out
}

// Lookup 直接读注册中心，不读也不改任何订阅的视图。
// 失败时按 IgnoreFailOfNamingService 决定返回空列表还是 LookupError。
func (n *NamingService) Lookup(ctx context.Context, info SubscribeInfo) ([]ServiceInstance, error) {
	if info.InterfaceName == "" {
		return nil, lookupError(newArgsError("interface name is empty"), "lookup")
	}
	if n.isDestroyed() {
		return nil, errClosed
	}
	instances, _, err := n.registry.ListInstances(ctx, info.InterfaceName)
	if err != nil {
		if info.IgnoreFailOfNamingService {
			logger.Warnw(ctx, "lookup failed, returning empty list", "service", info.InterfaceName, "error", err)
			return []ServiceInstance{}, nil
		}
		return nil, lookupError(err, "lookup "+info.InterfaceName)
	}
	return newInstanceSet(toInstances(instances)).sorted(), nil
}

// Subscribe 订阅服务成员变更。同一服务共用一个监听循环；同一监听者重复订阅不生效。
// 不等待首次通知，首次快照由监听循环异步以新增形式下发。
func (n *NamingService) Subscribe(info SubscribeInfo, listener NotifyListener) error {
	if info.InterfaceName == "" {
		return newArgsError("interface name is empty")
	}
	if listener == nil {
		return newArgsError("listener is nil")
	}
	if !reflect.TypeOf(listener).Comparable() {
		return newArgsError("listener type " + reflect.TypeOf(listener).String() + " is not comparable, wrap it with ListenerFunc")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed {
		return errClosed
	}
	s, ok := n.subscriptions[info.InterfaceName]
	if !ok {
		s = newSubscription(n.ctx, info, n.registry, n.opts)
		s.attach(listener)
		n.subscriptions[info.InterfaceName] = s
		s.start()
		return nil
	}
	s.attach(listener)
	return nil
}

// Unsubscribe 移除监听者，最后一个监听者移除时停止监听循环。
// 返回时该监听者正在进行的回调已经结束，之后也不会再被回调；
// 在它自己的回调里调用时不等待，直接返回。
func (n *NamingService) Unsubscribe(info SubscribeInfo, listener NotifyListener) {
	if listener == nil || !reflect.TypeOf(listener).Comparable() {
		return
	}
	n.mu.Lock()
	s, ok := n.subscriptions[info.InterfaceName]
	if !ok {
		n.mu.Unlock()
		return
	}
	found, remaining := s.detach(listener)
	if !found {
		n.mu.Unlock()
		return
	}
	if remaining > 0 {
		n.mu.Unlock()
		s.waitListener(listener)
		return
	}
	delete(n.subscriptions, info.InterfaceName)
	wait := s.requestStop()
	n.mu.Unlock()

	if wait {
		s.wait()
	}
}

// Subscriptions 当前所有订阅的状态
func (n *NamingService) Subscriptions() []SubscriptionStatus {
	n.mu.Lock()
	subs := make([]*subscription, 0, len(n.subscriptions))
	for _, s := range n.subscriptions {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	out := make([]SubscriptionStatus, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InterfaceName < out[j].InterfaceName })
	return out
}

// Destroy 停止所有监听循环，等进行中的注册/注销结束后尽力注销本进程注册的实例，
// 最后关闭注册中心连接。失败只记录日志。不要在 Notify 回调里调用。
func (n *NamingService) Destroy(ctx context.Context) {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	subs := make([]*subscription, 0, len(n.subscriptions))
	for _, s := range n.subscriptions {
		subs = append(subs, s)
	}
	n.subscriptions = make(map[string]*subscription)
	n.mu.Unlock()

	waits := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.requestStop() {
			waits = append(waits, s)
		}
	}
	for _, s := range waits {
		s.wait()
	}
	n.cancel()

	// 进行中的注册成功后会写入已注册集合，等它们结束再取快照
	n.inflight.Wait()
	n.mu.Lock()
	owned := make([]*RegisterInfo, 0, len(n.owned))
	for _, info := range n.owned {
		owned = append(owned, info)
	}
	n.owned = make(map[ownedKey]*RegisterInfo)
	n.mu.Unlock()

	for _, info := range owned {
		si := info.serviceInfo(nil)
		if err := n.registry.Unregister(ctx, si); err != nil {
			logger.Warnw(ctx, "unregister on destroy failed", "service", si.Name, "address", si.Address(), "error", err)
		}
	}
	if err := n.registry.Close(); err != nil {
		logger.Warnw(ctx, "close registry failed", "registry", n.registry.Name(), "error", err)
	}
	logger.Infow(ctx, "naming service destroyed", "registry", n.registry.Name(),
		"subscriptions", len(subs), "unregistered", len(owned))
}

func (n *NamingService) isDestroyed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroyed
}
