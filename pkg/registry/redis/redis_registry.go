package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/logger"
	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "go-naming"

// RedisConfig Redis配置
type RedisConfig struct {
	Address      []string `mapstructure:"address"`      // 地址 host:port
	Password     string   `mapstructure:"password"`     // 密码
	DB           int      `mapstructure:"db"`           // 数据库编号
	PoolSize     int      `mapstructure:"poolSize"`     // 连接池大小
	MinIdleConns int      `mapstructure:"minIdleConns"` // 最小空闲连接数
	ReadTimeout  int64    `mapstructure:"readTimeout"`  // 读取超时(秒)
	WriteTimeout int64    `mapstructure:"writeTimeout"` // 写入超时(秒)
	KeyPrefix    string   `mapstructure:"keyPrefix"`    // key 前缀
}

// RedisRegistry 每个服务一个 hash 存实例，一个计数器作为一致性索引，
// 变更后把新索引发布到该服务的频道，阻塞查询靠订阅频道唤醒。
// key 都带 {service} hash tag，集群模式下同一服务落在同一 slot。
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRegistry(cfg *RedisConfig) (*RedisRegistry, error) {
	if cfg == nil || len(cfg.Address) == 0 {
		return nil, errs.WithCode(errs.New("redis address is empty"), errs.ErrorArgs)
	}
	var rdb redis.UniversalClient
	if len(cfg.Address) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Address,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Address[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		})
	}

	// 测试连接
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WithCode(errs.Wrap(err, "connect to redis failed"), errs.ErrorRegistry)
	}
	return NewWithClient(rdb, cfg.KeyPrefix), nil
}

func NewWithClient(client redis.UniversalClient, prefix string) *RedisRegistry {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) Name() string {
	return "redis"
}

func (r *RedisRegistry) instancesKey(service string) string {
	return fmt.Sprintf("%s:{%s}:instances", r.prefix, service)
}

func (r *RedisRegistry) indexKey(service string) string {
	return fmt.Sprintf("%s:{%s}:index", r.prefix, service)
}

func (r *RedisRegistry) channel(service string) string {
	return fmt.Sprintf("%s:{%s}:changes", r.prefix, service)
}

func (r *RedisRegistry) Register(ctx context.Context, info *registry.ServiceInfo) error {
	if err := info.Validate(); err != nil {
		return errs.WithCode(errs.Wrap(err), errs.ErrorArgs)
	}
	data, err := json.Marshal(registry.InstanceOf(info))
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "marshal instance"), errs.ErrorInternal)
	}
	var incr *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.instancesKey(info.Name), info.Address(), data)
		incr = p.Incr(ctx, r.indexKey(info.Name))
		return nil
	})
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "redis register "+info.ID()), errs.ErrorRegistry)
	}
	r.publish(ctx, info.Name, incr.Val())
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, info *registry.ServiceInfo) error {
	removed, err := r.client.HDel(ctx, r.instancesKey(info.Name), info.Address()).Result()
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "redis unregister "+info.ID()), errs.ErrorRegistry)
	}
	if removed == 0 {
		return nil
	}
	index, err := r.client.Incr(ctx, r.indexKey(info.Name)).Result()
	if err != nil {
		return errs.WithCode(errs.Wrap(err, "redis bump index "+info.Name), errs.ErrorRegistry)
	}
	r.publish(ctx, info.Name, index)
	return nil
}

// publish 失败只影响唤醒时延，阻塞查询最迟在 wait 到期后读到新状态
func (r *RedisRegistry) publish(ctx context.Context, service string, index int64) {
	if err := r.client.Publish(ctx, r.channel(service), index).Err(); err != nil {
		logger.Warnw(ctx, "redis publish change failed", "service", service, "error", err)
	}
}

func (r *RedisRegistry) ListInstances(ctx context.Context, serviceName string) ([]*registry.ServiceInstance, uint64, error) {
	var (
		all *redis.MapStringStringCmd
		idx *redis.StringCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		all = p.HGetAll(ctx, r.instancesKey(serviceName))
		idx = p.Get(ctx, r.indexKey(serviceName))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, errs.WithCode(errs.Wrap(err, "redis list "+serviceName), errs.ErrorRegistry)
	}

	var index uint64
	if v, err := idx.Result(); err == nil {
		index, _ = strconv.ParseUint(v, 10, 64)
	}
	instances := make([]*registry.ServiceInstance, 0, len(all.Val()))
	for addr, data := range all.Val() {
		var inst registry.ServiceInstance
		if err := json.Unmarshal([]byte(data), &inst); err != nil {
			logger.Warnw(ctx, "skip malformed redis instance", "service", serviceName, "address", addr, "error", err)
			continue
		}
		instances = append(instances, &inst)
	}
	return instances, index, nil
}

func (r *RedisRegistry) BlockingQuery(ctx context.Context, serviceName string, index uint64, wait time.Duration) ([]*registry.ServiceInstance, uint64, error) {
	// 从未写过的服务索引为 0，同样挂起等待首次变更
	// 先订阅再读，避免读完到订阅之间的变更丢失
	pubsub := r.client.Subscribe(ctx, r.channel(serviceName))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, 0, errs.WithCode(errs.Wrap(err, "redis subscribe "+serviceName), errs.ErrorRegistry)
	}

	instances, current, err := r.ListInstances(ctx, serviceName)
	if err != nil || current != index {
		return instances, current, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-pubsub.Channel():
	case <-timer.C:
	case <-ctx.Done():
		return nil, 0, errs.WithCode(errs.Wrap(ctx.Err(), "redis wait "+serviceName), errs.ErrorRegistry)
	}
	return r.ListInstances(ctx, serviceName)
}

func (r *RedisRegistry) Close() error {
	if err := r.client.Close(); err != nil {
		return errs.WithCode(errs.Wrap(err, "close redis client"), errs.ErrorRegistry)
	}
	return nil
}
