package naming

import (
	"time"

	registry "github.com/code-sigs/go-naming/pkg/registry/registry_interface"
)

// Config 命名服务的文件/环境变量配置，对应 <prefix>.naming
type Config struct {
	Registry          string        `mapstructure:"registry"` // 如 consul://127.0.0.1:8500
	WaitTime          time.Duration `mapstructure:"waitTime"`
	RetryTimes        *int          `mapstructure:"retryTimes"` // nil 取默认值，0 表示不重试
	RetryDelay        time.Duration `mapstructure:"retryDelay"`
	BackoffInitial    time.Duration `mapstructure:"backoffInitial"`
	BackoffMax        time.Duration `mapstructure:"backoffMax"`
	BackoffMultiplier float64       `mapstructure:"backoffMultiplier"`
	PropagationDelay  time.Duration `mapstructure:"propagationDelay"`
	HealthCheck       struct {
		TTL             time.Duration `mapstructure:"ttl"`
		HTTP            string        `mapstructure:"http"`
		TCP             string        `mapstructure:"tcp"`
		Interval        time.Duration `mapstructure:"interval"`
		Timeout         time.Duration `mapstructure:"timeout"`
		DeregisterAfter time.Duration `mapstructure:"deregisterAfter"`
	} `mapstructure:"healthCheck"`
}

// ConfigDefaults 供 config.LoadConfigWithDefaults 使用
func ConfigDefaults() map[string]any {
	d := DefaultOptions()
	return map[string]any{
		"registry":                    "memory://",
		"waitTime":                    d.WaitTime,
		"retryTimes":                  d.RetryTimes,
		"retryDelay":                  d.RetryDelay,
		"backoffInitial":              d.BackoffInitial,
		"backoffMax":                  d.BackoffMax,
		"backoffMultiplier":           d.BackoffMultiplier,
		"propagationDelay":            d.PropagationDelay,
		"healthCheck.ttl":             d.HealthCheck.TTL,
		"healthCheck.deregisterAfter": d.HealthCheck.DeregisterAfter,
	}
}

// Options 只覆盖配置了的字段
func (c *Config) Options() []Option {
	var opts []Option
	if c.WaitTime > 0 {
		opts = append(opts, WithWaitTime(c.WaitTime))
	}
	if c.RetryTimes != nil || c.RetryDelay > 0 {
		d := DefaultOptions()
		times, delay := d.RetryTimes, c.RetryDelay
		if c.RetryTimes != nil {
			times = *c.RetryTimes
		}
		if delay == 0 {
			delay = d.RetryDelay
		}
		opts = append(opts, WithRetry(times, delay))
	}
	if c.BackoffInitial > 0 && c.BackoffMax > 0 {
		opts = append(opts, WithBackoff(c.BackoffInitial, c.BackoffMax))
	}
	if c.BackoffMultiplier >= 1 {
		opts = append(opts, WithBackoffMultiplier(c.BackoffMultiplier))
	}
	if c.PropagationDelay > 0 {
		opts = append(opts, WithPropagationDelay(c.PropagationDelay))
	}
	hc := c.HealthCheck
	if hc.TTL > 0 || hc.HTTP != "" || hc.TCP != "" {
		opts = append(opts, WithHealthCheck(&registry.HealthCheck{
			TTL:             hc.TTL,
			HTTP:            hc.HTTP,
			TCP:             hc.TCP,
			Interval:        hc.Interval,
			Timeout:         hc.Timeout,
			DeregisterAfter: hc.DeregisterAfter,
		}))
	}
	return opts
}
