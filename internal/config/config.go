// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/castellan/castellan/internal/retention"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/castellan/config.yaml",
	"/etc/castellan/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	RBAC       RBACConfig       `koanf:"rbac"`
	Audit      AuditConfig      `koanf:"audit"`
	Retention  RetentionConfig  `koanf:"retention"`
	Alerting   AlertingConfig   `koanf:"alerting"`
	Compliance ComplianceConfig `koanf:"compliance"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the audit and alert stores.
type DatabaseConfig struct {
	// Path is the DuckDB database file holding the audit trail.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`

	// AlertsPath is the BadgerDB directory holding alert records.
	AlertsPath string `koanf:"alerts_path"`
}

// RBACConfig configures permission evaluation.
type RBACConfig struct {
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// AuditConfig configures the audit service.
type AuditConfig struct {
	// StatsWindowDays is the default lookback for GET /audit/stats.
	StatsWindowDays int `koanf:"stats_window_days"`

	// MaxQueryLimit caps the page size of audit queries.
	MaxQueryLimit int `koanf:"max_query_limit"`
}

// RetentionConfig configures archival and cleanup.
type RetentionConfig struct {
	// ArchiveDir is where tar.gz archives are written.
	ArchiveDir string `koanf:"archive_dir"`

	// Policies replaces the built-in policy set when non-empty.
	Policies []retention.Policy `koanf:"policies"`
}

// AlertingConfig configures security alert detection and delivery.
type AlertingConfig struct {
	Enabled bool `koanf:"enabled"`

	AuthFailureThreshold int           `koanf:"auth_failure_threshold"`
	AuthFailureWindow    time.Duration `koanf:"auth_failure_window"`
	DenialThreshold      int           `koanf:"denial_threshold"`
	DenialWindow         time.Duration `koanf:"denial_window"`

	// NotifyInterval and NotifyBurst bound notifier fan-out.
	NotifyInterval time.Duration `koanf:"notify_interval"`
	NotifyBurst    int           `koanf:"notify_burst"`
}

// ComplianceConfig configures report generation.
type ComplianceConfig struct {
	// BreakerTimeout is how long the store circuit breaker stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`

	// BreakerFailures is the consecutive-failure trip threshold.
	BreakerFailures int `koanf:"breaker_failures"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:       "/data/castellan.duckdb",
			MaxMemory:  "1GB",
			Threads:    0, // 0 = use runtime.NumCPU()
			AlertsPath: "/data/alerts",
		},
		RBAC: RBACConfig{
			CacheEnabled: true,
			CacheTTL:     5 * time.Minute,
		},
		Audit: AuditConfig{
			StatsWindowDays: 30,
			MaxQueryLimit:   1000,
		},
		Retention: RetentionConfig{
			ArchiveDir: "/data/archives",
			Policies:   retention.DefaultPolicies(),
		},
		Alerting: AlertingConfig{
			Enabled:              true,
			AuthFailureThreshold: 5,
			AuthFailureWindow:    15 * time.Minute,
			DenialThreshold:      10,
			DenialWindow:         15 * time.Minute,
			NotifyInterval:       30 * time.Second,
			NotifyBurst:          5,
		},
		Compliance: ComplianceConfig{
			BreakerTimeout:  30 * time.Second,
			BreakerFailures: 5,
		},
	}
}

// Load loads configuration using koanf v2 with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CASTELLAN_SERVER_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when supplied through the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// the known slice fields. Env vars come in as strings, but the config
// expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice (from YAML or defaults): nothing to do.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Server
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",
		"alerts_path":       "database.alerts_path",

		// RBAC
		"rbac_cache_enabled": "rbac.cache_enabled",
		"rbac_cache_ttl":     "rbac.cache_ttl",

		// Audit
		"audit_stats_window_days": "audit.stats_window_days",
		"audit_max_query_limit":   "audit.max_query_limit",

		// Retention
		"retention_archive_dir": "retention.archive_dir",

		// Alerting
		"alerting_enabled":                "alerting.enabled",
		"alerting_auth_failure_threshold": "alerting.auth_failure_threshold",
		"alerting_auth_failure_window":    "alerting.auth_failure_window",
		"alerting_denial_threshold":       "alerting.denial_threshold",
		"alerting_denial_window":          "alerting.denial_window",
		"alerting_notify_interval":        "alerting.notify_interval",
		"alerting_notify_burst":           "alerting.notify_burst",

		// Compliance
		"compliance_breaker_timeout":  "compliance.breaker_timeout",
		"compliance_breaker_failures": "compliance.breaker_failures",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs <= 0 {
		return fmt.Errorf("server.rate_limit_reqs must be positive, got %d", c.Server.RateLimitReqs)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be trace, debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.RBAC.CacheEnabled && c.RBAC.CacheTTL <= 0 {
		return fmt.Errorf("rbac.cache_ttl must be positive when the cache is enabled, got %s", c.RBAC.CacheTTL)
	}
	if c.Audit.StatsWindowDays <= 0 {
		return fmt.Errorf("audit.stats_window_days must be positive, got %d", c.Audit.StatsWindowDays)
	}
	if c.Audit.MaxQueryLimit <= 0 {
		return fmt.Errorf("audit.max_query_limit must be positive, got %d", c.Audit.MaxQueryLimit)
	}

	if c.Retention.ArchiveDir == "" {
		return fmt.Errorf("retention.archive_dir must not be empty")
	}
	for i := range c.Retention.Policies {
		if err := c.Retention.Policies[i].Validate(); err != nil {
			return fmt.Errorf("retention.policies[%d]: %w", i, err)
		}
	}

	if c.Alerting.Enabled {
		if c.Alerting.AuthFailureThreshold <= 0 || c.Alerting.DenialThreshold <= 0 {
			return fmt.Errorf("alerting thresholds must be positive")
		}
		if c.Alerting.AuthFailureWindow <= 0 || c.Alerting.DenialWindow <= 0 {
			return fmt.Errorf("alerting windows must be positive")
		}
		if c.Alerting.NotifyInterval <= 0 || c.Alerting.NotifyBurst <= 0 {
			return fmt.Errorf("alerting notify throttle must be positive")
		}
	}

	if c.Compliance.BreakerTimeout <= 0 {
		return fmt.Errorf("compliance.breaker_timeout must be positive, got %s", c.Compliance.BreakerTimeout)
	}
	if c.Compliance.BreakerFailures <= 0 {
		return fmt.Errorf("compliance.breaker_failures must be positive, got %d", c.Compliance.BreakerFailures)
	}
	return nil
}
