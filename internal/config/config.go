// Package config loads call-screen settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/call-screen/internal/screening"
)

// Environment variables that override file settings.
const (
	EnvDB       = "CALL_SCREEN_DB"
	EnvConfig   = "CALL_SCREEN_CONFIG"
	EnvRedis    = "CALL_SCREEN_REDIS"
	EnvLogLevel = "CALL_SCREEN_LOG_LEVEL"
)

// Config is the full application configuration.
type Config struct {
	DB                string    `yaml:"db"`
	Listen            string    `yaml:"listen"`
	LogLevel          string    `yaml:"log_level"`
	PermissionGranted bool      `yaml:"permission_granted"`
	Screening         Screening `yaml:"screening"`
	Cache             Cache     `yaml:"cache"`
}

// Screening configures the disposition engine.
type Screening struct {
	Policy        string        `yaml:"policy"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	Workers       int           `yaml:"workers"`
}

// Cache configures the optional redis lookup cache. An empty RedisAddr
// disables it.
type Cache struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DB:                filepath.Join(home, ".call-screen", "callers.db"),
		Listen:            "127.0.0.1:8085",
		LogLevel:          "info",
		PermissionGranted: true,
		Screening: Screening{
			Policy:        string(screening.PolicyAwait),
			LookupTimeout: screening.DefaultLookupTimeout,
			Workers:       screening.DefaultWorkers,
		},
		Cache: Cache{TTL: 10 * time.Minute},
	}
}

// Load reads path over the defaults and then applies environment
// overrides. An empty path falls back to $CALL_SCREEN_CONFIG; a missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv(EnvDB); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv(EnvRedis); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := screening.ParsePolicy(c.Screening.Policy); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Screening.LookupTimeout < 0 {
		return fmt.Errorf("screening.lookup_timeout must not be negative")
	}
	if c.Screening.Workers < 0 {
		return fmt.Errorf("screening.workers must not be negative")
	}
	return nil
}

// EngineOptions converts the screening section into engine options.
func (c Config) EngineOptions(logger *slog.Logger) screening.Options {
	policy, _ := screening.ParsePolicy(c.Screening.Policy)
	return screening.Options{
		Policy:        policy,
		LookupTimeout: c.Screening.LookupTimeout,
		Workers:       c.Screening.Workers,
		Logger:        logger,
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", s)
	}
	return level, nil
}
