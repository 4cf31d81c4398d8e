package box

import (
	"context"
	"net/http"
	"time"

	"github.com/code-sigs/go-naming/internal/admin"
	"github.com/code-sigs/go-naming/pkg/config"
	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/grpc"
	"github.com/code-sigs/go-naming/pkg/kafka"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/naming"
	"github.com/code-sigs/go-naming/pkg/registry"
	"github.com/code-sigs/go-naming/pkg/router"
	"github.com/code-sigs/go-naming/pkg/utils"
	"github.com/gin-gonic/gin"
)

type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Level      string `mapstructure:"level"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Stdout     bool   `mapstructure:"stdout"`
}

// SelfConfig 把 agent 自身注册为一个服务实例
type SelfConfig struct {
	Register bool   `mapstructure:"register"`
	Service  string `mapstructure:"service"`
	Host     string `mapstructure:"host"` // 为空时取本机 IP
}

// Config 对应配置文件 naming.agent 节点
type Config struct {
	Naming naming.Config     `mapstructure:"naming"`
	Http   config.HttpConfig `mapstructure:"http"`
	Log    LogConfig         `mapstructure:"log"`
	Self   SelfConfig        `mapstructure:"self"`
	Watch  []string          `mapstructure:"watch"` // 启动即订阅并记录变更日志的服务
	Events EventsConfig      `mapstructure:"events"`
	Debug  bool              `mapstructure:"debug"`
}

// EventsConfig watch 到的变更投递到 kafka，未配置时只记日志
type EventsConfig struct {
	Kafka kafka.Config `mapstructure:"kafka"`
}

func Defaults() map[string]any {
	d := map[string]any{
		"http.host":      "0.0.0.0",
		"http.port":      9010,
		"log.level":      "info",
		"log.maxAgeDays": 7,
		"log.stdout":     true,
		"self.service":   "go-naming-agent",
	}
	for k, v := range naming.ConfigDefaults() {
		d["naming."+k] = v
	}
	return d
}

// LoadConfig 读取 <path>/agent.yaml 的 naming.agent 节点，环境变量 NAMING_AGENT_* 覆盖
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfigWithDefaults[Config](path, "agent", "naming", "agent", Defaults())
}

// Box 组装命名服务、管理接口与 gRPC 工具
type Box struct {
	Naming *naming.NamingService
	Admin  *admin.Service
	Router *router.Router
	GRPC   *grpc.GRPC

	cfg      *Config
	producer *kafka.Producer[admin.ChangeEvent]
}

func New(cfg *Config) (*Box, error) {
	reg, err := registry.NewRegistryFromURL(cfg.Naming.Registry)
	if err != nil {
		return nil, err
	}
	ns, err := naming.New(reg, cfg.Naming.Options()...)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}
	b := &Box{Naming: ns, GRPC: grpc.New(ns), cfg: cfg}
	b.Admin = admin.New(ns)
	if cfg.Events.Kafka.Enabled() {
		b.producer, err = kafka.NewProducer[admin.ChangeEvent](&cfg.Events.Kafka)
		if err != nil {
			ns.Destroy(context.Background())
			return nil, err
		}
		b.Admin.WithEventSink(b.producer)
	}
	b.Router = b.Admin.Router()
	return b, nil
}

// Run 启动管理接口，ctx 结束时关闭 HTTP 并销毁命名服务
func (b *Box) Run(ctx context.Context) error {
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Naming.Destroy(dctx)
		if b.producer != nil {
			if err := b.producer.Close(); err != nil {
				logger.Warnw(dctx, "close kafka producer failed", "error", err)
			}
		}
	}()

	for _, service := range b.cfg.Watch {
		if err := b.Admin.WatchService(service); err != nil {
			return err
		}
	}
	if b.cfg.Self.Register {
		if err := b.registerSelf(ctx); err != nil {
			return err
		}
	}
	return b.Router.Run(ctx, b.cfg.Http.Addr(), func(e *gin.Engine) {
		e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}, b.cfg.Debug)
}

func (b *Box) registerSelf(ctx context.Context) error {
	host, err := utils.ResolveHost(b.cfg.Self.Host)
	if err != nil {
		return errs.Wrap(err, "resolve self host")
	}
	info := &naming.RegisterInfo{
		InterfaceName: b.cfg.Self.Service,
		Host:          host,
		Port:          int(b.cfg.Http.Port),
		Tags:          []string{"naming-agent"},
		Metadata:      map[string]string{"instanceId": utils.GenerateUUID()},
	}
	if err := b.Naming.Register(ctx, info); err != nil {
		return err
	}
	logger.Infow(ctx, "agent registered", "service", info.InterfaceName, "host", host, "port", info.Port)
	return nil
}
