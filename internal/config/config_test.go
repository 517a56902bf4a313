package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/call-screen/internal/screening"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDB, "")
	t.Setenv(EnvRedis, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "await", cfg.Screening.Policy)
	assert.Equal(t, screening.DefaultLookupTimeout, cfg.Screening.LookupTimeout)
	assert.Equal(t, "callers.db", filepath.Base(cfg.DB))
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvDB, "")
	t.Setenv(EnvRedis, "")
	t.Setenv(EnvLogLevel, "")

	path := writeConfig(t, `
db: /tmp/screen.db
listen: ":9000"
log_level: debug
permission_granted: false
screening:
  policy: immediate
  lookup_timeout: 250ms
  workers: 2
cache:
  redis_addr: localhost:6379
  ttl: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/screen.db", cfg.DB)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.False(t, cfg.PermissionGranted)
	assert.Equal(t, 250*time.Millisecond, cfg.Screening.LookupTimeout)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)

	opts := cfg.EngineOptions(nil)
	assert.Equal(t, screening.PolicyImmediate, opts.Policy)
	assert.Equal(t, 2, opts.Workers)

	level, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "db: /from/file.db\n")
	t.Setenv(EnvDB, "/from/env.db")
	t.Setenv(EnvRedis, "redis:6379")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DB)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvDB, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "await", cfg.Screening.Policy)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(EnvDB, "")
	t.Setenv(EnvLogLevel, "")

	_, err := Load(writeConfig(t, "screening:\n  policy: eventually\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log_level: chatty\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "screening: [not, a, map]\n"))
	assert.Error(t, err)
}
