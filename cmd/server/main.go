// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package main is the entry point for the Streetwatch server.
//
// Streetwatch lets residents drop geotagged activity reports on a
// shared neighborhood map. Every submission passes through a daily
// per-client quota, a content-moderation check, and address
// geocoding before it lands in the pending queue; verifiers promote or
// deny queued reports, and only verified reports are public.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file (koanf)
//  2. Live store: BadgerDB buckets for pending/verified reports,
//     quota counters, and stats
//  3. Archive: DuckDB for reports past the retention window
//  4. Image storage: local disk or S3
//  5. Ingestion pipeline: quota, moderation, geocoding providers
//  6. Moderation and maintenance services
//  7. Supervision tree: HTTP server plus background jobs (nightly
//     archival migration, audit retention sweep)
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest
// priority wins): environment variables, config file, built-in
// defaults. The only hard requirement is SECURITY_JWT_SECRET (32+
// characters) when moderation endpoints are used.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, background jobs
// stop at the next safe point, then the stores close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/streetwatch/streetwatch/internal/api"
	"github.com/streetwatch/streetwatch/internal/archive"
	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/auth"
	"github.com/streetwatch/streetwatch/internal/authz"
	"github.com/streetwatch/streetwatch/internal/blob"
	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/geocode"
	"github.com/streetwatch/streetwatch/internal/ingest"
	"github.com/streetwatch/streetwatch/internal/livestore"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/migrate"
	"github.com/streetwatch/streetwatch/internal/moderation"
	"github.com/streetwatch/streetwatch/internal/ratelimit"
	"github.com/streetwatch/streetwatch/internal/stats"
	"github.com/streetwatch/streetwatch/internal/supervisor"
	"github.com/streetwatch/streetwatch/internal/verify"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config not available yet; the default logger has to do.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("live_store", cfg.LiveStore.Path).
		Str("archive", cfg.Archive.Path).
		Str("blob_backend", cfg.Blob.Backend).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Streetwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live, err := livestore.Open(cfg.LiveStore)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open live store")
	}
	defer func() {
		if err := live.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing live store")
		}
	}()

	arch, err := archive.Open(cfg.Archive)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer func() {
		if err := arch.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing archive")
		}
	}()

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize image storage")
	}

	// The audit trail shares the live store's BadgerDB when persistence
	// is on; otherwise events live in a bounded in-memory ring.
	var auditStore audit.Store
	if cfg.Audit.Persistent {
		auditStore = audit.NewBadgerStore(live.Badger())
	} else {
		auditStore = audit.NewMemoryStore(0)
	}
	auditCfg := audit.DefaultConfig()
	if cfg.Audit.BufferSize > 0 {
		auditCfg.BufferSize = cfg.Audit.BufferSize
	}
	if cfg.Audit.RetentionDays > 0 {
		auditCfg.RetentionDays = cfg.Audit.RetentionDays
	}
	auditLog := audit.NewLogger(auditStore, auditCfg)
	defer func() {
		if err := auditLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	limiter := ratelimit.New(live.Badger(), cfg.RateLimit)
	moderator := moderation.NewClient(cfg.Moderation)
	geocoder := geocode.NewClient(cfg.Geocode)

	gate := ingest.NewGate(limiter, moderator, geocoder, live.Pending(), live, auditLog)
	decider := verify.NewService(live.Pending(), live.Verified(), blobs, auditLog)
	aggregator := stats.NewAggregator(live.Pending(), live.Verified(), arch, live, auditLog)
	migrator := migrate.NewArchivalMigrator(live.Verified(), arch, live, auditLog, cfg.Migrate.RetentionDays)
	consolidator := migrate.NewConsolidator(auditLog)
	deleter := migrate.NewRangeDeleter(live.Pending(), live.Verified(), arch, auditLog)

	jwtManager, err := auth.NewJWTManager(cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{
		ModelPath:  cfg.Security.CasbinModelPath,
		PolicyPath: cfg.Security.CasbinPolicy,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}
	defer enforcer.Close()

	handlers := api.NewHandlers(api.HandlersConfig{
		Gate:         gate,
		Blobs:        blobs,
		Decider:      decider,
		Pending:      live.Pending(),
		Verified:     live.Verified(),
		Archive:      arch,
		Stats:        live,
		Recomputer:   aggregator,
		Migrator:     migrator,
		Consolidator: consolidator,
		Deleter:      deleter,
		AuditStore:   auditStore,
		LivePing:     live.Ping,
		ArchivePing:  arch.Ping,
		Version:      version,
		API:          cfg.API,

		MaxUploadBytes: cfg.Blob.MaxUploadBytes,
	})
	router := api.NewRouter(handlers, api.RouterConfig{
		JWT:      jwtManager,
		Authz:    authz.NewMiddleware(enforcer, auditLog),
		Security: cfg.Security,
	})

	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	if cfg.Migrate.Enabled {
		tree.AddJob(supervisor.NewMigrationService(migrator, cfg.Migrate.Hour))
		logging.Info().
			Int("hour_utc", cfg.Migrate.Hour).
			Int("retention_days", cfg.Migrate.RetentionDays).
			Msg("Nightly archival migration scheduled")
	}
	tree.AddJob(supervisor.NewAuditRetentionService(auditStore, cfg.Audit.RetentionDays))

	logging.Info().Str("addr", server.Addr).Msg("Server listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, s := range unstopped {
			logging.Warn().Str("service", s.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
}
