package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNaming struct {
	Registry   string `mapstructure:"registry"`
	RetryTimes int    `mapstructure:"retryTimes"`
	Admin      HttpConfig
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
app:
  naming:
    registry: consul://127.0.0.1:8500
    admin:
      host: 0.0.0.0
      port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "naming.yaml"), []byte(content), 0o644))

	cfg, err := LoadConfigWithDefaults[testNaming](dir, "naming", "app", "naming", map[string]any{"retryTimes": 3})
	require.NoError(t, err)
	assert.Equal(t, "consul://127.0.0.1:8500", cfg.Registry)
	assert.Equal(t, 3, cfg.RetryTimes)
	assert.Equal(t, "0.0.0.0:9090", cfg.Admin.Addr())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfigWithDefaults[testNaming](t.TempDir(), "absent", "app", "naming", map[string]any{"registry": "memory://"})
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Registry)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "naming.yaml"),
		[]byte("app:\n  naming:\n    registry: memory://\n"), 0o644))
	t.Setenv("APP_NAMING_RETRYTIMES", "5")

	cfg, err := LoadConfigWithDefaults[testNaming](dir, "naming", "app", "naming", map[string]any{"retryTimes": 3})
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Registry)
	assert.Equal(t, 5, cfg.RetryTimes)
}
