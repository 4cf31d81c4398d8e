package naming

import (
	"net"
	"strconv"
	"time"

	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
)

// ServiceInstance 一个可达端点，只按 (Host, Port) 判等，可直接作为 map key
type ServiceInstance struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func NewServiceInstance(host string, port int) ServiceInstance {
	return ServiceInstance{Host: host, Port: port}
}

func (s ServiceInstance) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s ServiceInstance) String() string {
	return s.Address()
}

// RegisterInfo 发布到注册中心的实例
type RegisterInfo struct {
	InterfaceName string
	Host          string
	Port          int
	Tags          []string
	Metadata      map[string]string
	// HealthCheck 为空时使用 Options 中的默认健康检查
	HealthCheck *registry.HealthCheck
}

// ownedKey 本进程已注册实例的去重键
type ownedKey struct {
	interfaceName string
	instance      ServiceInstance
}

func (r *RegisterInfo) key() ownedKey {
	return ownedKey{interfaceName: r.InterfaceName, instance: ServiceInstance{Host: r.Host, Port: r.Port}}
}

func (r *RegisterInfo) serviceInfo(defaultCheck *registry.HealthCheck) *registry.ServiceInfo {
	check := r.HealthCheck
	if check == nil {
		check = defaultCheck
	}
	return &registry.ServiceInfo{
		Name:     r.InterfaceName,
		Host:     r.Host,
		Port:     r.Port,
		Tags:     append([]string(nil), r.Tags...),
		Metadata: registry.CloneMap(r.Metadata),
		Check:    check,
	}
}

// SubscribeInfo 订阅的逻辑服务，InterfaceName 相同即视为同一订阅
type SubscribeInfo struct {
	InterfaceName string
	// IgnoreFailOfNamingService 为 true 时 Lookup 失败返回空列表而不是错误
	IgnoreFailOfNamingService bool
}

// NotifyListener 接收成员变更。同一订阅内串行回调；挂在多个订阅上时可能被并发调用。
// 实现不能是不可比较的类型（如 func），需要时用 ListenerFunc 包装。
type NotifyListener interface {
	Notify(added, removed []ServiceInstance)
}

type funcListener struct {
	fn func(added, removed []ServiceInstance)
}

func (l *funcListener) Notify(added, removed []ServiceInstance) {
	l.fn(added, removed)
}

// ListenerFunc 把函数包装成 NotifyListener，每次调用得到一个独立的监听者
func ListenerFunc(fn func(added, removed []ServiceInstance)) NotifyListener {
	return &funcListener{fn: fn}
}

// SubscriptionStatus 某个订阅当前的状态快照
type SubscriptionStatus struct {
	InterfaceName string            `json:"interfaceName"`
	Index         uint64            `json:"index"`
	Instances     []ServiceInstance `json:"instances"`
	Listeners     int               `json:"listeners"`
	Seeded        bool              `json:"seeded"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func toInstances(in []*registry.ServiceInstance) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(in))
	for _, inst := range in {
		if inst == nil {
			continue
		}
		out = append(out, ServiceInstance{Host: inst.Host, Port: inst.Port})
	}
	return out
}
