// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

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
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streetwatch/config.yaml",
	"/etc/streetwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8710,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		LiveStore: LiveStoreConfig{
			Path:     "/data/livestore",
			InMemory: false,
		},
		Archive: ArchiveConfig{
			Path:      "/data/archive.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
			BatchSize: MaxStoreBatchSize,
		},
		Blob: BlobConfig{
			Backend:        "local",
			Path:           "/data/blobs",
			PublicURL:      "",
			TokenKey:       "",
			S3Region:       "us-east-1",
			URLExpiry:      7 * 24 * time.Hour,
			MaxUploadBytes: 10 << 20,
		},
		RateLimit: RateLimitConfig{
			DailyLimit: 5,
			Salt:       "",
			// Slightly over 24h: a counter written at 00:00 UTC must not
			// expire before its day ends.
			CounterTTL: 25 * time.Hour,
		},
		Moderation: ModerationConfig{
			URL:           "",
			APIKey:        "",
			Timeout:       5 * time.Second,
			MaxTextLength: 2000,
			FailOpen:      true,
		},
		Geocode: GeocodeConfig{
			URL:               "",
			APIKey:            "",
			Region:            "us",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 10,
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			TokenTTL:       24 * time.Hour,
			CORSOrigins:    []string{},
			EdgeRateLimit:  100,
			EdgeRateWindow: time.Minute,
		},
		Migrate: MigrateConfig{
			RetentionDays: 7,
			Hour:          3,
			Enabled:       true,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			BufferSize:    1000,
			Persistent:    true,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
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

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
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

// findConfigFile returns the first config file that exists, or "".
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

// sliceConfigPaths are the config paths parsed as comma-separated slices
// when set from environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
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
// Unmapped variables return "" and are skipped, so random environment noise
// never pollutes the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Live store
		"livestore_path":      "live_store.path",
		"livestore_in_memory": "live_store.in_memory",

		// Archive
		"archive_path":       "archive.path",
		"archive_max_memory": "archive.max_memory",
		"archive_threads":    "archive.threads",
		"archive_batch_size": "archive.batch_size",

		// Blob storage
		"blob_backend":          "blob.backend",
		"blob_path":             "blob.path",
		"blob_public_url":       "blob.public_url",
		"blob_token_key":        "blob.token_key",
		"blob_s3_bucket":        "blob.s3_bucket",
		"blob_s3_region":        "blob.s3_region",
		"blob_s3_endpoint":      "blob.s3_endpoint",
		"blob_url_expiry":       "blob.url_expiry",
		"blob_max_upload_bytes": "blob.max_upload_bytes",

		// Rate limiting
		"rate_limit_daily":       "rate_limit.daily_limit",
		"rate_limit_salt":        "rate_limit.salt",
		"rate_limit_counter_ttl": "rate_limit.counter_ttl",

		// Moderation provider
		"moderation_url":       "moderation.url",
		"moderation_api_key":   "moderation.api_key",
		"moderation_timeout":   "moderation.timeout",
		"moderation_max_text":  "moderation.max_text_length",
		"moderation_fail_open": "moderation.fail_open",

		// Geocoding provider
		"geocode_url":     "geocode.url",
		"geocode_api_key": "geocode.api_key",
		"geocode_region":  "geocode.region",
		"geocode_timeout": "geocode.timeout",
		"geocode_rps":     "geocode.requests_per_second",

		// Security
		"jwt_secret":         "security.jwt_secret",
		"token_ttl":          "security.token_ttl",
		"cors_origins":       "security.cors_origins",
		"edge_rate_limit":    "security.edge_rate_limit",
		"edge_rate_window":   "security.edge_rate_window",
		"casbin_model_path":  "security.casbin_model_path",
		"casbin_policy_path": "security.casbin_policy_path",

		// Migration
		"migrate_retention_days": "migrate.retention_days",
		"migrate_hour":           "migrate.hour",
		"migrate_enabled":        "migrate.enabled",

		// Audit
		"audit_retention_days": "audit.retention_days",
		"audit_buffer_size":    "audit.buffer_size",
		"audit_persistent":     "audit.persistent",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
