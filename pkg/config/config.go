package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// HttpConfig 管理端 HTTP 监听配置
type HttpConfig struct {
	Host string `mapstructure:"host"`
	Port int32  `mapstructure:"port"`
}

func (c HttpConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig 加载 envPrefix.configKey 下的配置到任意结构体中。
// 配置文件可选，环境变量（如 NAMING_NAMING_WAITTIME）优先于文件。
func LoadConfig[T any](configPath string, fileName string, envPrefix string, configKey string) (*T, error) {
	return LoadConfigWithDefaults[T](configPath, fileName, envPrefix, configKey, nil)
}

// LoadConfigWithDefaults 同 LoadConfig，defaults 的 key 相对于 configKey
func LoadConfigWithDefaults[T any](configPath, fileName, envPrefix, configKey string, defaults map[string]any) (*T, error) {
	v := viper.New()
	fullKey := fmt.Sprintf("%s.%s", envPrefix, configKey)

	for k, val := range defaults {
		v.SetDefault(fullKey+"."+k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
	}
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// UnmarshalKey 对父节点只返回配置文件里的子树，默认值和环境变量会丢失，
	// 所以从逐个叶子合并过的 AllSettings 里取出子树再解码
	sub := viper.New()
	if node, ok := lookup(v.AllSettings(), fullKey); ok {
		if err := sub.MergeConfigMap(node); err != nil {
			return nil, fmt.Errorf("unable to merge '%s': %w", fullKey, err)
		}
	}
	cfg := new(T)
	if err := sub.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode '%s' into struct: %w", fullKey, err)
	}
	return cfg, nil
}

func lookup(settings map[string]any, key string) (map[string]any, bool) {
	node := settings
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		next, ok := node[part].(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}
