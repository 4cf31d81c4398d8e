package consul

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	consulapi "github.com/hashicorp/consul/api"
)

// Config consul 连接配置
type Config struct {
	Address     string // host:port，可带 http:// 或 https:// 前缀
	Datacenter  string
	Token       string
	PassingOnly bool // 只返回健康检查通过的实例
}

// ConsulRegistry 基于 consul agent 的注册中心网关。
// 注册时带 TTL 检查的实例会在后台定期上报心跳，直到注销或 Close。
type ConsulRegistry struct {
	client      *consulapi.Client
	passingOnly bool

	mu         sync.Mutex
	heartbeats map[string]context.CancelFunc // serviceID -> 停止心跳
	closed     bool
}

func NewConsulRegistry(cfg Config) (*ConsulRegistry, error) {
	apiCfg := consulapi.DefaultConfig()
	addr := cfg.Address
	switch {
	case strings.HasPrefix(addr, "https://"):
		apiCfg.Scheme = "https"
		addr = strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		apiCfg.Scheme = "http"
		addr = strings.TrimPrefix(addr, "http://")
	}
	if addr != "" {
		apiCfg.Address = addr
	}
	apiCfg.Datacenter = cfg.Datacenter
	apiCfg.Token = cfg.Token

	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, errs.WithCode(errs.Wrap(err, "create consul client"), errs.ErrorRegistry)
	}
	return &ConsulRegistry{
		client:      client,
		passingOnly: cfg.PassingOnly,
		heartbeats:  make(map[string]context.CancelFunc),
	}, nil
}

func (c *ConsulRegistry) Name() string {
	return "consul"
}

func checkID(serviceID string) string {
	return "service:" + serviceID
}

func durationString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func (c *ConsulRegistry) Register(ctx context.Context, info *registry.ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	id := info.ID()
	reg := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    info.Name,
		Address: info.Host,
		Port:    info.Port,
		Tags:    info.Tags,
		Meta:    info.Metadata,
	}
	if chk := info.Check; chk != nil {
		reg.Check = &consulapi.AgentServiceCheck{
			CheckID:                        checkID(id),
			Interval:                       durationString(chk.Interval),
			Timeout:                        durationString(chk.Timeout),
			DeregisterCriticalServiceAfter: durationString(chk.DeregisterAfter),
			Status:                         consulapi.HealthPassing,
		}
		switch {
		case chk.HTTP != "":
			reg.Check.HTTP = chk.HTTP
		case chk.TCP != "":
			reg.Check.TCP = chk.TCP
		case chk.TTL > 0:
			reg.Check.TTL = chk.TTL.String()
		default:
			reg.Check = nil
		}
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errs.WithCode(errs.New("consul registry closed"), errs.ErrorRegistry)
	}

	opts := consulapi.ServiceRegisterOpts{ReplaceExistingChecks: true}.WithContext(ctx)
	err := c.client.Agent().ServiceRegisterOpts(reg, opts)
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "consul register "+id), errs.ErrorRegistry)
	}
	if reg.Check != nil && reg.Check.TTL != "" {
		c.startHeartbeat(id, info.Check.TTL)
	}
	return nil
}

// startHeartbeat 以 TTL/2 的间隔把检查置为 passing，Close 之后不再启动
func (c *ConsulRegistry) startHeartbeat(serviceID string, ttl time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	if old, ok := c.heartbeats[serviceID]; ok {
		old()
	}
	c.heartbeats[serviceID] = cancel
	c.mu.Unlock()

	interval := ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.client.Agent().UpdateTTL(checkID(serviceID), "", consulapi.HealthPassing); err != nil {
					logger.Warnw(ctx, "consul ttl heartbeat failed", "serviceID", serviceID, "error", err)
				}
			}
		}
	}()
}

func (c *ConsulRegistry) stopHeartbeat(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.heartbeats[serviceID]; ok {
		cancel()
		delete(c.heartbeats, serviceID)
	}
}

func (c *ConsulRegistry) Unregister(ctx context.Context, info *registry.ServiceInfo) error {
	id := info.ID()
	c.stopHeartbeat(id)
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if err := c.client.Agent().ServiceDeregisterOpts(id, q); err != nil {
		if isNotFound(err) {
			return nil
		}
		return errs.WithCode(errs.Wrap(err, "consul deregister "+id), errs.ErrorRegistry)
	}
	return nil
}

func isNotFound(err error) bool {
	var se consulapi.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "Unknown service")
}

func (c *ConsulRegistry) ListInstances(ctx context.Context, serviceName string) ([]*registry.ServiceInstance, uint64, error) {
	return c.query(ctx, serviceName, &consulapi.QueryOptions{})
}

func (c *ConsulRegistry) BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*registry.ServiceInstance, uint64, error) {
	return c.query(ctx, serviceName, &consulapi.QueryOptions{WaitIndex: index, WaitTime: wait})
}

func (c *ConsulRegistry) query(ctx context.Context, serviceName string, q *consulapi.QueryOptions) ([]*registry.ServiceInstance, uint64, error) {
	entries, meta, err := c.client.Health().Service(serviceName, "", c.passingOnly, q.WithContext(ctx))
	if err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "consul health service "+serviceName), errs.ErrorRegistry)
	}
	instances := make([]*registry.ServiceInstance, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Service == nil {
			continue
		}
		host := e.Service.Address
		if host == "" && e.Node != nil {
			host = e.Node.Address
		}
		instances = append(instances, &registry.ServiceInstance{
			Host:     host,
			Port:     e.Service.Port,
			Tags:     e.Service.Tags,
			Metadata: e.Service.Meta,
		})
	}
	return instances, meta.LastIndex, nil
}

// Close 停止所有心跳。consul 客户端基于 HTTP，无需显式断开。
func (c *ConsulRegistry) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, cancel := range c.heartbeats {
		cancel()
		delete(c.heartbeats, id)
	}
	return nil
}
