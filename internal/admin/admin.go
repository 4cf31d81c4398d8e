package admin

import (
	"context"
	"sync"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/naming"
	"github.com/code-sigs/go-naming/pkg/router"
)

// ChangeEvent watch 到的一次成员变更
type ChangeEvent struct {
	Service string                   `json:"service"`
	Added   []naming.ServiceInstance `json:"added"`
	Removed []naming.ServiceInstance `json:"removed"`
	At      time.Time                `json:"at"`
}

// EventSink 变更事件的下游，如 kafka.Producer[ChangeEvent]
type EventSink interface {
	Send(ctx context.Context, key string, ev *ChangeEvent, header map[string]string) error
}

// Service 命名服务的 HTTP 管理接口
type Service struct {
	naming *naming.NamingService
	sink   EventSink

	mu       sync.Mutex
	watchers map[string]naming.NotifyListener // service -> 日志监听者
}

func New(ns *naming.NamingService) *Service {
	return &Service{naming: ns, watchers: make(map[string]naming.NotifyListener)}
}

// WithEventSink watch 到的变更额外投递到 sink，投递失败只记日志
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// Router 挂载到 /naming 下
func (s *Service) Router() *router.Router {
	r := router.New()
	g := r.Group("/naming")
	g.GET("/lookup", s.Lookup)
	g.GET("/subscriptions", s.Subscriptions)
	g.GET("/owned", s.Owned)
	g.POST("/register", s.Register)
	g.POST("/unregister", s.Unregister)
	g.POST("/watch", s.Watch)
	g.POST("/unwatch", s.Unwatch)
	return r
}

type LookupRequest struct {
	Service    string `json:"service" form:"service" binding:"required"`
	IgnoreFail bool   `json:"ignoreFail" form:"ignoreFail"`
}

type LookupResponse struct {
	Service   string                   `json:"service"`
	Instances []naming.ServiceInstance `json:"instances"`
}

func (s *Service) Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	instances, err := s.naming.Lookup(ctx, naming.SubscribeInfo{
		InterfaceName:             req.Service,
		IgnoreFailOfNamingService: req.IgnoreFail,
	})
	if err != nil {
		return nil, err
	}
	return &LookupResponse{Service: req.Service, Instances: instances}, nil
}

type Empty struct{}

func (s *Service) Subscriptions(ctx context.Context, _ *Empty) ([]naming.SubscriptionStatus, error) {
	return s.naming.Subscriptions(), nil
}

type InstanceRequest struct {
	Service  string            `json:"service" binding:"required"`
	Host     string            `json:"host" binding:"required"`
	Port     int               `json:"port" binding:"required"`
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
}

func (r *InstanceRequest) info() *naming.RegisterInfo {
	return &naming.RegisterInfo{
		InterfaceName: r.Service,
		Host:          r.Host,
		Port:          r.Port,
		Tags:          r.Tags,
		Metadata:      r.Metadata,
	}
}

type InstanceResponse struct {
	Service string `json:"service"`
	Address string `json:"address"`
}

func (s *Service) Register(ctx context.Context, req *InstanceRequest) (*InstanceResponse, error) {
	if err := s.naming.Register(ctx, req.info()); err != nil {
		return nil, err
	}
	return &InstanceResponse{Service: req.Service, Address: naming.NewServiceInstance(req.Host, req.Port).Address()}, nil
}

func (s *Service) Unregister(ctx context.Context, req *InstanceRequest) (*InstanceResponse, error) {
	if err := s.naming.Unregister(ctx, req.info()); err != nil {
		return nil, err
	}
	return &InstanceResponse{Service: req.Service, Address: naming.NewServiceInstance(req.Host, req.Port).Address()}, nil
}

type OwnedInstance struct {
	Service  string            `json:"service"`
	Address  string            `json:"address"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Service) Owned(ctx context.Context, _ *Empty) ([]OwnedInstance, error) {
	owned := s.naming.OwnedInstances()
	out := make([]OwnedInstance, 0, len(owned))
	for _, info := range owned {
		out = append(out, OwnedInstance{
			Service:  info.InterfaceName,
			Address:  naming.NewServiceInstance(info.Host, info.Port).Address(),
			Tags:     info.Tags,
			Metadata: info.Metadata,
		})
	}
	return out, nil
}

type WatchRequest struct {
	Service string `json:"service" binding:"required"`
}

type WatchResponse struct {
	Service  string `json:"service"`
	Watching bool   `json:"watching"`
}

// Watch 订阅服务并把成员变更写入日志，重复调用不生效
func (s *Service) Watch(ctx context.Context, req *WatchRequest) (*WatchResponse, error) {
	if err := s.WatchService(req.Service); err != nil {
		return nil, err
	}
	return &WatchResponse{Service: req.Service, Watching: true}, nil
}

func (s *Service) WatchService(service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchers[service]; ok {
		return nil
	}
	sink := s.sink
	l := naming.ListenerFunc(func(added, removed []naming.ServiceInstance) {
		ctx := context.Background()
		logger.Infow(ctx, "service membership changed",
			"service", service, "added", added, "removed", removed)
		if sink == nil {
			return
		}
		ev := &ChangeEvent{Service: service, Added: added, Removed: removed, At: time.Now()}
		if err := sink.Send(ctx, service, ev, nil); err != nil {
			logger.Warnw(ctx, "publish change event failed", "service", service, "error", err)
		}
	})
	if err := s.naming.Subscribe(naming.SubscribeInfo{InterfaceName: service}, l); err != nil {
		return errs.Wrap(err, "watch "+service)
	}
	s.watchers[service] = l
	return nil
}

func (s *Service) Unwatch(ctx context.Context, req *WatchRequest) (*WatchResponse, error) {
	s.mu.Lock()
	l, ok := s.watchers[req.Service]
	delete(s.watchers, req.Service)
	s.mu.Unlock()
	if ok {
		s.naming.Unsubscribe(naming.SubscribeInfo{InterfaceName: req.Service}, l)
	}
	return &WatchResponse{Service: req.Service, Watching: false}, nil
}
