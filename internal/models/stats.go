// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package models

import "time"

// StatsSnapshot holds the aggregate report counters. It is maintained
// incrementally on ingestion and fully recomputable from both stores;
// recomputation is the canonical repair mechanism for drift.
type StatsSnapshot struct {
	Total    int64 `json:"total_pins"`
	Today    int64 `json:"today_pins"`
	ThisWeek int64 `json:"week_pins"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	LiveStoreReady   bool       `json:"live_store_ready"`
	ArchiveReady     bool       `json:"archive_ready"`
	LastMigrationRun *time.Time `json:"last_migration_run,omitempty"`
	Uptime           float64    `json:"uptime_seconds"`
}

// MigrationResult reports the outcome of an archival migration run.
// Attempted and Moved differ when individual entries fail; the job logs and
// continues rather than aborting the batch.
type MigrationResult struct {
	Attempted     int   `json:"attempted"`
	Moved         int   `json:"moved"`
	Failed        int   `json:"failed"`
	ArchivedCount int64 `json:"archived_count"`
}

// RangeDeleteResult reports how many entries a delete-since operation
// removed (or would remove, for a dry run) from each store.
type RangeDeleteResult struct {
	Live    int  `json:"live"`
	Archive int  `json:"archive"`
	DryRun  bool `json:"dry_run,omitempty"`
}
