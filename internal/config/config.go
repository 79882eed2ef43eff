// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Streetwatch server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	LiveStore  LiveStoreConfig  `koanf:"live_store"`
	Archive    ArchiveConfig    `koanf:"archive"`
	Blob       BlobConfig       `koanf:"blob"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Moderation ModerationConfig `koanf:"moderation"`
	Geocode    GeocodeConfig    `koanf:"geocode"`
	Security   SecurityConfig   `koanf:"security"`
	Migrate    MigrateConfig    `koanf:"migrate"`
	Audit      AuditConfig      `koanf:"audit"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// LiveStoreConfig holds BadgerDB settings for the live report store.
type LiveStoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ArchiveConfig holds DuckDB settings for the archive store.
type ArchiveConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
	// BatchSize caps rows per delete/write batch during maintenance
	// operations. The underlying store rejects oversized batches, so this
	// is clamped to at most 500.
	BatchSize int `koanf:"batch_size"`
}

// BlobConfig holds image storage settings.
type BlobConfig struct {
	// Backend selects the implementation: "local" or "s3".
	Backend string `koanf:"backend"`

	// Local backend
	Path      string `koanf:"path"`
	PublicURL string `koanf:"public_url"`
	TokenKey  string `koanf:"token_key"`

	// S3 backend
	S3Bucket   string        `koanf:"s3_bucket"`
	S3Region   string        `koanf:"s3_region"`
	S3Endpoint string        `koanf:"s3_endpoint"`
	URLExpiry  time.Duration `koanf:"url_expiry"`

	// MaxUploadBytes caps a single image upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// RateLimitConfig holds the per-client daily submission quota settings.
type RateLimitConfig struct {
	DailyLimit int `koanf:"daily_limit"`
	// Salt keys the one-way client hash; raw client addresses are never
	// stored.
	Salt string `koanf:"salt"`
	// CounterTTL bounds counter storage growth. Slightly more than 24h so
	// a counter never expires while its UTC day is still current.
	CounterTTL time.Duration `koanf:"counter_ttl"`
}

// ModerationConfig holds the content-moderation provider settings.
type ModerationConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// MaxTextLength: longer text is treated as flagged without calling the
	// provider.
	MaxTextLength int `koanf:"max_text_length"`
	// FailOpen treats an unreachable provider as "not flagged". Safe for
	// availability, unsafe for abuse prevention; deployments that prefer
	// the opposite trade-off set this to false.
	FailOpen bool `koanf:"fail_open"`
}

// GeocodeConfig holds the geocoding provider settings.
type GeocodeConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Region  string        `koanf:"region"`
	Timeout time.Duration `koanf:"timeout"`
	// RequestsPerSecond paces outbound calls to the paid provider.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// SecurityConfig holds authentication and authorization settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	EdgeRateLimit   int           `koanf:"edge_rate_limit"`
	EdgeRateWindow  time.Duration `koanf:"edge_rate_window"`
	CasbinModelPath string        `koanf:"casbin_model_path"`
	CasbinPolicy    string        `koanf:"casbin_policy_path"`
}

// MigrateConfig holds archival migration settings.
type MigrateConfig struct {
	// RetentionDays is the live-store retention window; older entries move
	// to the archive.
	RetentionDays int `koanf:"retention_days"`
	// Hour is the UTC hour of day the nightly migration runs.
	Hour int `koanf:"hour"`
	// Enabled toggles the scheduled job (manual runs stay available).
	Enabled bool `koanf:"enabled"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	RetentionDays int  `koanf:"retention_days"`
	BufferSize    int  `koanf:"buffer_size"`
	Persistent    bool `koanf:"persistent"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Validate checks the loaded configuration for invalid or, in production,
// insecure values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.RateLimit.DailyLimit < 1 {
		return fmt.Errorf("rate_limit.daily_limit must be >= 1, got %d", c.RateLimit.DailyLimit)
	}
	if c.RateLimit.CounterTTL < 24*time.Hour {
		return fmt.Errorf("rate_limit.counter_ttl must be > 24h so counters outlive their UTC day, got %s", c.RateLimit.CounterTTL)
	}
	if c.Migrate.RetentionDays < 1 {
		return fmt.Errorf("migrate.retention_days must be >= 1, got %d", c.Migrate.RetentionDays)
	}
	if c.Migrate.Hour < 0 || c.Migrate.Hour > 23 {
		return fmt.Errorf("migrate.hour must be 0-23, got %d", c.Migrate.Hour)
	}
	if c.Archive.BatchSize < 1 || c.Archive.BatchSize > MaxStoreBatchSize {
		return fmt.Errorf("archive.batch_size must be 1-%d, got %d", MaxStoreBatchSize, c.Archive.BatchSize)
	}

	switch c.Blob.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("blob.backend must be local or s3, got %q", c.Blob.Backend)
	}
	if c.Blob.Backend == "s3" && c.Blob.S3Bucket == "" {
		return fmt.Errorf("blob.s3_bucket is required for the s3 backend")
	}

	if c.IsProduction() {
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
		}
		if c.RateLimit.Salt == "" {
			return fmt.Errorf("rate_limit.salt is required in production")
		}
	}

	return nil
}

// MaxStoreBatchSize is the defensive ceiling on batched store operations.
// It matches the smallest maximum batch size among supported backing stores.
const MaxStoreBatchSize = 500
