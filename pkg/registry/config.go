package registry

import (
	"github.com/code-sigs/go-naming/pkg/registry/consul"
	"github.com/code-sigs/go-naming/pkg/registry/etcd"
	"github.com/code-sigs/go-naming/pkg/registry/redis"
	"github.com/code-sigs/go-naming/pkg/registry/zk"
)

// RegistryType 定义注册中心类型
type RegistryType string

const (
	MemoryType RegistryType = "memory"
	ConsulType RegistryType = "consul"
	EtcdType   RegistryType = "etcd"
	ZkType     RegistryType = "zookeeper"
	RedisType  RegistryType = "redis"
)

// RegistryOption 配置参数，Type 对应的那一项必须非空
type RegistryOption struct {
	Type      RegistryType
	Consul    *consul.Config
	Etcd      *etcd.Config
	Zookeeper *zk.Config
	Redis     *redis.RedisConfig
}
