package config

import (
	"fmt"
	"strings"
	"time"

	coreagg "github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Sealing   SealingConfig   `koanf:"sealing"`
	Catalog   CatalogConfig   `koanf:"catalog"`
}

type ServerConfig struct {
	Port          int      `koanf:"port"`
	Host          string   `koanf:"host"`
	MaxBodySizeMB int      `koanf:"max_body_size_mb"`
	Mode          string   `koanf:"mode"`         // debug | release
	CORSOrigins   []string `koanf:"cors_origins"` // "*" allows all
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// AnalyticsConfig holds the engine parameters: windowing granularity plus the
// anomaly-detection defaults applied when a query does not override them.
type AnalyticsConfig struct {
	Granularity         string  `koanf:"granularity"` // day | week | month
	AnomalyThreshold    float64 `koanf:"anomaly_threshold"`
	DefaultBaselineSize int     `koanf:"default_baseline_size"`
	MaxTopN             int     `koanf:"max_top_n"`
}

// SealingConfig controls the background scheduler that closes elapsed windows.
// The engine never seals on its own; disabling the scheduler means sealing
// happens only through the API.
type SealingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Interval string `koanf:"interval"` // parsed and validated on startup
	Grace    string `koanf:"grace"`    // how long past window end before auto-seal
}

type CatalogConfig struct {
	Dir string `koanf:"dir"`
}

func (c SealingConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(c.Interval)
}

func (c SealingConfig) GraceDuration() (time.Duration, error) {
	return time.ParseDuration(c.Grace)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if _, err := coreagg.ParseGranularity(c.Analytics.Granularity); err != nil {
		return fmt.Errorf("invalid analytics.granularity: %w", err)
	}
	if c.Analytics.AnomalyThreshold <= 0 {
		return fmt.Errorf("analytics.anomaly_threshold must be > 0")
	}
	if c.Analytics.DefaultBaselineSize < 2 {
		return fmt.Errorf("analytics.default_baseline_size must be >= 2")
	}
	if c.Analytics.MaxTopN <= 0 {
		return fmt.Errorf("analytics.max_top_n must be > 0")
	}

	interval, err := c.Sealing.IntervalDuration()
	if err != nil {
		return fmt.Errorf("invalid sealing.interval %q: %w", c.Sealing.Interval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("sealing.interval must be > 0")
	}
	grace, err := c.Sealing.GraceDuration()
	if err != nil {
		return fmt.Errorf("invalid sealing.grace %q: %w", c.Sealing.Grace, err)
	}
	if grace < 0 {
		return fmt.Errorf("sealing.grace must be >= 0")
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                     8080,
		"server.host":                     "0.0.0.0",
		"server.max_body_size_mb":         1,
		"server.mode":                     "release",
		"server.cors_origins":             []string{"*"},
		"database.type":                   "postgres",
		"database.dsn":                    "",
		"database.max_open_conns":         25,
		"database.max_idle_conns":         25,
		"database.auto_migrate":           true,
		"analytics.granularity":           "day",
		"analytics.anomaly_threshold":     2.0,
		"analytics.default_baseline_size": 8,
		"analytics.max_top_n":             100,
		"sealing.enabled":                 true,
		"sealing.interval":                "5m",
		"sealing.grace":                   "1h",
		"catalog.dir":                     "./config/catalog",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("EPIONE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "EPIONE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
