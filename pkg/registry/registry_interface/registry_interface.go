package registry_interface

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Registry 注册中心网关：只暴露命名服务需要的四个操作。
// 所有实现都要把后端错误包装为 errs.ErrorRegistry，调用方据此区分瞬时故障。
type Registry interface {
	// Register 幂等发布一个实例
	Register(ctx context.Context, info *ServiceInfo) error
	// Unregister 幂等摘除一个实例，实例不存在时返回 nil
	Unregister(ctx context.Context, info *ServiceInfo) error
	// ListInstances 非阻塞读取当前实例列表及一致性索引
	ListInstances(ctx context.Context, serviceName string) ([]*ServiceInstance, uint64, error)
	// BlockingQuery 长轮询：服务状态越过 index 时立即返回，否则最多挂起 wait 后返回当前状态
	BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*ServiceInstance, uint64, error)
	Name() string
	// Close 释放连接、停止心跳
	Close() error
}

// HealthCheck 健康检查描述，不同后端取其能表达的部分
type HealthCheck struct {
	TTL             time.Duration // TTL 检查（consul 心跳 / etcd 租约）
	HTTP            string        // HTTP 检查地址
	TCP             string        // TCP 检查地址
	Interval        time.Duration
	Timeout         time.Duration
	DeregisterAfter time.Duration // 持续 critical 多久后自动摘除
}

type ServiceInfo struct {
	Name     string
	Host     string
	Port     int
	Tags     []string
	Metadata map[string]string
	Check    *HealthCheck
}

// ID 同一服务下按 host:port 唯一
func (s *ServiceInfo) ID() string {
	return fmt.Sprintf("%s-%s-%d", s.Name, s.Host, s.Port)
}

func (s *ServiceInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *ServiceInfo) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service name is empty")
	}
	if s.Host == "" {
		return fmt.Errorf("service %s: host is empty", s.Name)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("service %s: invalid port %d", s.Name, s.Port)
	}
	return nil
}

type ServiceInstance struct {
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *ServiceInstance) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// InstanceOf 由注册信息生成实例视图
func InstanceOf(info *ServiceInfo) *ServiceInstance {
	return &ServiceInstance{
		Host:     info.Host,
		Port:     info.Port,
		Tags:     append([]string(nil), info.Tags...),
		Metadata: CloneMap(info.Metadata),
	}
}

func CloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ParseAddress 解析 host:port
func ParseAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}
