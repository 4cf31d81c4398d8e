package registry

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/registry/consul"
	"github.com/code-sigs/go-naming/pkg/registry/etcd"
	"github.com/code-sigs/go-naming/pkg/registry/memory"
	"github.com/code-sigs/go-naming/pkg/registry/redis"
	"github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	"github.com/code-sigs/go-naming/pkg/registry/zk"
)

// NewRegistry 根据 opt 创建注册中心，opt 为空时使用 memory
func NewRegistry(opt *RegistryOption) (registry_interface.Registry, error) {
	if opt == nil || opt.Type == "" || opt.Type == MemoryType {
		return memory.NewMemoryRegistry(), nil
	}
	var (
		reg registry_interface.Registry
		err error
	)
	// 逐个赋值，避免把 nil 指针装进非 nil 接口
	switch opt.Type {
	case ConsulType:
		if opt.Consul == nil {
			return nil, missingOption(opt.Type)
		}
		reg, err = consul.NewConsulRegistry(*opt.Consul)
	case EtcdType:
		if opt.Etcd == nil {
			return nil, missingOption(opt.Type)
		}
		reg, err = etcd.NewEtcdRegistry(*opt.Etcd)
	case ZkType:
		if opt.Zookeeper == nil {
			return nil, missingOption(opt.Type)
		}
		reg, err = zk.NewZkRegistry(*opt.Zookeeper)
	case RedisType:
		if opt.Redis == nil {
			return nil, missingOption(opt.Type)
		}
		reg, err = redis.NewRedisRegistry(opt.Redis)
	default:
		return nil, errs.WithCode(errs.Newf("unknown registry type %q", opt.Type), errs.ErrorArgs)
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func missingOption(t RegistryType) error {
	return errs.WithCode(errs.Newf("registry type %s: missing options", t), errs.ErrorArgs)
}

// NewRegistryFromURL 由地址创建注册中心，例如：
//
//	consul://127.0.0.1:8500?dc=dc1&token=xxx&passingOnly=true
//	etcd://10.0.0.1:2379,10.0.0.2:2379/go-naming/services?dialTimeout=5s&leaseTTL=30s
//	zookeeper://10.0.0.1:2181/go-naming/services?sessionTimeout=10s
//	redis://:password@127.0.0.1:6379/0?prefix=go-naming
//	memory://
func NewRegistryFromURL(raw string) (registry_interface.Registry, error) {
	opt, err := ParseRegistryURL(raw)
	if err != nil {
		return nil, err
	}
	return NewRegistry(opt)
}

type registryURL struct {
	scheme   string
	user     string
	password string
	hosts    []string
	path     string
	query    url.Values
}

// parseURL 手工拆分，net/url 不接受逗号分隔的多主机
func parseURL(raw string) (*registryURL, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("invalid registry url %q: missing scheme", raw)
	}
	u := &registryURL{scheme: strings.ToLower(scheme)}

	rest, rawQuery, _ := strings.Cut(rest, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url %q: %w", raw, err)
	}
	u.query = q

	authority, p, _ := strings.Cut(rest, "/")
	if p != "" {
		u.path = "/" + p
	}
	if userinfo, hosts, ok := strings.Cut(authority, "@"); ok {
		u.user, u.password, _ = strings.Cut(userinfo, ":")
		authority = hosts
	}
	for _, h := range strings.Split(authority, ",") {
		if h = strings.TrimSpace(h); h != "" {
			u.hosts = append(u.hosts, h)
		}
	}
	return u, nil
}

func (u *registryURL) duration(key string) (time.Duration, error) {
	v := u.query.Get(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func (u *registryURL) requireHosts() error {
	if len(u.hosts) == 0 {
		return fmt.Errorf("registry url %s:// has no host", u.scheme)
	}
	return nil
}

// ParseRegistryURL 把地址解析为 RegistryOption
func ParseRegistryURL(raw string) (*RegistryOption, error) {
	opt, err := parseRegistryURL(raw)
	if err != nil {
		return nil, errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	return opt, nil
}

func parseRegistryURL(raw string) (*RegistryOption, error) {
	u, err := parseURL(raw)
	if err != nil {
		return nil, err
	}
	switch u.scheme {
	case "memory", "mem":
		return &RegistryOption{Type: MemoryType}, nil

	case "consul", "consuls":
		if err := u.requireHosts(); err != nil {
			return nil, err
		}
		scheme := "http://"
		if u.scheme == "consuls" {
			scheme = "https://"
		}
		passingOnly, _ := strconv.ParseBool(u.query.Get("passingOnly"))
		return &RegistryOption{Type: ConsulType, Consul: &consul.Config{
			Address:     scheme + u.hosts[0],
			Datacenter:  u.query.Get("dc"),
			Token:       u.query.Get("token"),
			PassingOnly: passingOnly,
		}}, nil

	case "etcd":
		if err := u.requireHosts(); err != nil {
			return nil, err
		}
		dial, err := u.duration("dialTimeout")
		if err != nil {
			return nil, err
		}
		ttl, err := u.duration("leaseTTL")
		if err != nil {
			return nil, err
		}
		return &RegistryOption{Type: EtcdType, Etcd: &etcd.Config{
			Endpoints:   u.hosts,
			DialTimeout: dial,
			Username:    u.user,
			Password:    u.password,
			RootPath:    u.path,
			LeaseTTL:    ttl,
		}}, nil

	case "zookeeper", "zk":
		if err := u.requireHosts(); err != nil {
			return nil, err
		}
		timeout, err := u.duration("sessionTimeout")
		if err != nil {
			return nil, err
		}
		return &RegistryOption{Type: ZkType, Zookeeper: &zk.Config{
			Servers:        u.hosts,
			RootPath:       u.path,
			SessionTimeout: timeout,
		}}, nil

	case "redis":
		if err := u.requireHosts(); err != nil {
			return nil, err
		}
		cfg := &redis.RedisConfig{
			Address:   u.hosts,
			Password:  u.password,
			KeyPrefix: u.query.Get("prefix"),
		}
		if db := strings.Trim(u.path, "/"); db != "" {
			if cfg.DB, err = strconv.Atoi(db); err != nil {
				return nil, fmt.Errorf("invalid redis db %q", db)
			}
		}
		return &RegistryOption{Type: RedisType, Redis: cfg}, nil

	default:
		return nil, fmt.Errorf("unsupported registry scheme %q", u.scheme)
	}
}
