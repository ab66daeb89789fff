package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: \"file::memory:\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ShortCode.Length)
	assert.Equal(t, 5, cfg.ShortCode.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Expiry.SweepInterval)
	assert.Equal(t, "memory", cfg.Usage.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  host: db
expiry:
  window: 30m
  sweep_interval: 10s
shortcode:
  length: 6
`)
	t.Setenv("FASTLINK_DB_HOST", "db.internal")
	t.Setenv("FASTLINK_SERVER_PORT", "9090")
	t.Setenv("FASTLINK_SWEEP_INTERVAL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Expiry.Window)
	assert.Equal(t, 5*time.Second, cfg.Expiry.SweepInterval)
	assert.Equal(t, 6, cfg.ShortCode.Length)
}

func TestLoad_InvalidEnv(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: \"file::memory:\"\nserver:\n  port: 8081\n")

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", "FASTLINK_SERVER_PORT", "abc"},
		{"interval without unit", "FASTLINK_SWEEP_INTERVAL", "5"},
		{"bad window", "FASTLINK_EXPIRY_WINDOW", "forever"},
		{"redis db not a number", "FASTLINK_REDIS_DB", "one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg, err := Load(path)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "环境变量解析失败")
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"amqp without url", func(c *Config) { c.Usage.Backend = "amqp" }},
		{"unknown usage backend", func(c *Config) { c.Usage.Backend = "kafka" }},
		{"code too long", func(c *Config) { c.ShortCode.Length = 64 }},
		{"negative window", func(c *Config) { c.Expiry.Window = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
