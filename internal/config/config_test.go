// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8420 {
		t.Errorf("Server.Port = %d, want 8420", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v, want info/json", cfg.Logging)
	}
	if cfg.Database.Path != "/data/castellan.duckdb" {
		t.Errorf("Database.Path = %q, want /data/castellan.duckdb", cfg.Database.Path)
	}
	if !cfg.RBAC.CacheEnabled || cfg.RBAC.CacheTTL != 5*time.Minute {
		t.Errorf("RBAC defaults = %+v, want enabled cache with 5m TTL", cfg.RBAC)
	}
	if len(cfg.Retention.Policies) != 4 {
		t.Errorf("default retention policies = %d, want 4", len(cfg.Retention.Policies))
	}
	if cfg.Alerting.AuthFailureThreshold != 5 || cfg.Alerting.AuthFailureWindow != 15*time.Minute {
		t.Errorf("Alerting auth failure defaults = %+v", cfg.Alerting)
	}
	if cfg.Alerting.DenialThreshold != 10 {
		t.Errorf("Alerting.DenialThreshold = %d, want 10", cfg.Alerting.DenialThreshold)
	}

	// Defaults must pass their own validation.
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
logging:
  level: debug
  format: console
database:
  path: /tmp/audit.duckdb
rbac:
  cache_ttl: 90s
alerting:
  denial_threshold: 25
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want debug/console from file", cfg.Logging)
	}
	if cfg.Database.Path != "/tmp/audit.duckdb" {
		t.Errorf("Database.Path = %q, want file override", cfg.Database.Path)
	}
	if cfg.RBAC.CacheTTL != 90*time.Second {
		t.Errorf("RBAC.CacheTTL = %s, want 90s from file", cfg.RBAC.CacheTTL)
	}
	if cfg.Alerting.DenialThreshold != 25 {
		t.Errorf("Alerting.DenialThreshold = %d, want 25 from file", cfg.Alerting.DenialThreshold)
	}
	// Unset sections keep their defaults.
	if cfg.Audit.StatsWindowDays != 30 {
		t.Errorf("Audit.StatsWindowDays = %d, want default 30", cfg.Audit.StatsWindowDays)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RBAC_CACHE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want env override 9001", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override warn", cfg.Logging.Level)
	}
	if cfg.RBAC.CacheEnabled {
		t.Error("RBAC.CacheEnabled = true, want env override false")
	}
}

func TestCORSOriginsFromEnvSplit(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CORS_ORIGINS", "https://cms.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := []string{"https://cms.example.com", "https://admin.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestUnmappedEnvVarsIgnored(t *testing.T) {
	t.Setenv("SOME_RANDOM_VAR", "value")
	if got := envTransformFunc("SOME_RANDOM_VAR"); got != "" {
		t.Errorf("envTransformFunc(SOME_RANDOM_VAR) = %q, want empty", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "text" }, true},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, true},
		{"cache enabled without ttl", func(c *Config) { c.RBAC.CacheTTL = 0 }, true},
		{"cache disabled without ttl ok", func(c *Config) {
			c.RBAC.CacheEnabled = false
			c.RBAC.CacheTTL = 0
		}, false},
		{"empty archive dir", func(c *Config) { c.Retention.ArchiveDir = "" }, true},
		{"bad retention policy", func(c *Config) { c.Retention.Policies[0].RetentionDays = 0 }, true},
		{"zero alert threshold", func(c *Config) { c.Alerting.AuthFailureThreshold = 0 }, true},
		{"alerting disabled skips thresholds", func(c *Config) {
			c.Alerting.Enabled = false
			c.Alerting.AuthFailureThreshold = 0
		}, false},
		{"zero breaker failures", func(c *Config) { c.Compliance.BreakerFailures = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
