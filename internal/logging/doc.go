// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package logging provides centralized zerolog-based logging for Streetwatch.
//
// All components log through this package so that output format, level, and
// request correlation behave uniformly:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Msg("server starting")
//	logging.Error().Err(err).Msg("archival migration failed")
//
//	// With request context (request_id propagation)
//	logging.Ctx(ctx).Info().Str("address_key", key).Msg("report merged")
//
// Always terminate log chains with .Msg() or .Send(); an unterminated chain
// is silently dropped by zerolog.
//
// The SlogHandler adapter bridges zerolog to log/slog for libraries that
// require an *slog.Logger (the suture supervision tree's event hook).
package logging
