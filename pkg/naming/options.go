package naming

import (
	"time"

	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
)

// Options 命名服务配置选项
type Options struct {
	WaitTime          time.Duration // 长轮询最长挂起时间
	RetryTimes        int           // 注册/注销失败后的重试次数
	RetryDelay        time.Duration // 重试间隔
	BackoffInitial    time.Duration // 监听循环首次退避间隔
	BackoffMax        time.Duration // 监听循环最大退避间隔
	BackoffMultiplier float64
	// PropagationDelay 注册中心写后读的经验传播延迟，本包不依赖它，仅供调用方等待可见性时参考
	PropagationDelay time.Duration
	HealthCheck      *registry.HealthCheck // RegisterInfo 未指定时使用
}

// DefaultOptions 返回默认配置
func DefaultOptions() *Options {
	return &Options{
		WaitTime:          30 * time.Second,
		RetryTimes:        3,
		RetryDelay:        500 * time.Millisecond,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMax:        30 * time.Second,
		BackoffMultiplier: 2,
		PropagationDelay:  3 * time.Second,
		HealthCheck: &registry.HealthCheck{
			TTL:             30 * time.Second,
			DeregisterAfter: time.Minute,
		},
	}
}

// Option 配置选项函数类型
type Option func(*Options)

// WithWaitTime 设置长轮询超时
func WithWaitTime(wait time.Duration) Option {
	return func(o *Options) {
		o.WaitTime = wait
	}
}

// WithRetry 设置注册重试
func WithRetry(times int, delay time.Duration) Option {
	return func(o *Options) {
		o.RetryTimes = times
		o.RetryDelay = delay
	}
}

// WithBackoff 设置监听循环的退避区间
func WithBackoff(initial, max time.Duration) Option {
	return func(o *Options) {
		o.BackoffInitial = initial
		o.BackoffMax = max
	}
}

func WithBackoffMultiplier(m float64) Option {
	return func(o *Options) {
		o.BackoffMultiplier = m
	}
}

func WithPropagationDelay(d time.Duration) Option {
	return func(o *Options) {
		o.PropagationDelay = d
	}
}

// WithHealthCheck 设置默认健康检查，传 nil 表示不带检查
func WithHealthCheck(check *registry.HealthCheck) Option {
	return func(o *Options) {
		o.HealthCheck = check
	}
}

// Validate 验证配置有效性
func (o *Options) Validate() error {
	if o.WaitTime <= 0 {
		return newArgsError("wait time must be positive")
	}
	if o.RetryTimes < 0 {
		return newArgsError("retry times cannot be negative")
	}
	if o.RetryDelay < 0 {
		return newArgsError("retry delay cannot be negative")
	}
	if o.BackoffInitial <= 0 || o.BackoffMax < o.BackoffInitial {
		return newArgsError("backoff must satisfy 0 < initial <= max")
	}
	return nil
}
