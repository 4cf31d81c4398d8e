package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
)

// MemoryRegistry 进程内注册中心，带按服务的一致性索引，支持长轮询
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]*registry.ServiceInfo // serviceName -> host:port -> info
	svcIndex map[string]uint64                           // serviceName -> 最近一次变更的索引
	watchers map[string][]chan struct{}
	index    uint64 // 全局索引
	closed   bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]*registry.ServiceInfo),
		svcIndex: make(map[string]uint64),
		watchers: make(map[string][]chan struct{}),
	}
}

func (m *MemoryRegistry) Name() string {
	return "memory"
}

// nextIndexLocked 推进索引并唤醒该服务的所有等待者
func (m *MemoryRegistry) nextIndexLocked(name string) {
	m.index++
	m.svcIndex[name] = m.index
	for _, ch := range m.watchers[name] {
		close(ch)
	}
	delete(m.watchers, name)
}

func (m *MemoryRegistry) Register(ctx context.Context, info *registry.ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errs.WithCode(errs.New("memory registry closed"), errs.ErrorRegistry)
	}
	if m.services[info.Name] == nil {
		m.services[info.Name] = make(map[string]*registry.ServiceInfo)
	}
	cp := *info
	cp.Tags = append([]string(nil), info.Tags...)
	cp.Metadata = registry.CloneMap(info.Metadata)
	m.services[info.Name][info.Address()] = &cp
	m.nextIndexLocked(info.Name)
	return nil
}

func (m *MemoryRegistry) Unregister(ctx context.Context, info *registry.ServiceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errs.WithCode(errs.New("memory registry closed"), errs.ErrorRegistry)
	}
	insts := m.services[info.Name]
	if _, ok := insts[info.Address()]; !ok {
		return nil
	}
	delete(insts, info.Address())
	if len(insts) == 0 {
		delete(m.services, info.Name)
	}
	m.nextIndexLocked(info.Name)
	return nil
}

func (m *MemoryRegistry) ListInstances(ctx context.Context, serviceName string) ([]*registry.ServiceInstance, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, 0, errs.WithCode(errs.New("memory registry closed"), errs.ErrorRegistry)
	}
	return m.instancesLocked(serviceName), m.svcIndex[serviceName], nil
}

func (m *MemoryRegistry) BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*registry.ServiceInstance, uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, 0, errs.WithCode(errs.New("memory registry closed"), errs.ErrorRegistry)
	}
	if m.svcIndex[serviceName] != index {
		defer m.mu.Unlock()
		return m.instancesLocked(serviceName), m.svcIndex[serviceName], nil
	}
	ch := make(chan struct{})
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		m.removeWatcher(serviceName, ch)
	case <-ctx.Done():
		m.removeWatcher(serviceName, ch)
		return nil, 0, errs.WithCode(errs.Wrap(ctx.Err(), "blocking query "+serviceName), errs.ErrorRegistry)
	}
	return m.ListInstances(ctx, serviceName)
}

func (m *MemoryRegistry) removeWatcher(serviceName string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	watchers := m.watchers[serviceName]
	for i, w := range watchers {
		if w == ch {
			m.watchers[serviceName] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(m.watchers[serviceName]) == 0 {
		delete(m.watchers, serviceName)
	}
}

func (m *MemoryRegistry) instancesLocked(serviceName string) []*registry.ServiceInstance {
	instances := make([]*registry.ServiceInstance, 0, len(m.services[serviceName]))
	for _, info := range m.services[serviceName] {
		instances = append(instances, registry.InstanceOf(info))
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Address() < instances[j].Address() })
	return instances
}

// Close 唤醒所有等待者，之后的调用都返回错误
func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for name, list := range m.watchers {
		for _, ch := range list {
			close(ch)
		}
		delete(m.watchers, name)
	}
	return nil
}
