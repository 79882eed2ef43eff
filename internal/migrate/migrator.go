// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package migrate moves aged-out reports from the live store into the
// archive and hosts the one-off maintenance operations: consolidation
// under recomputed address keys, and interactive range deletion.
package migrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
)

// ArchiveStore is the archive tier: the common store operations plus
// date-range primitives the range deleter needs.
type ArchiveStore interface {
	reports.Store
	Count(ctx context.Context) (int64, error)
	DeleteAddedSince(ctx context.Context, cutoff time.Time) (int64, error)
	CountAddedSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchivalAdjuster applies the post-migration stats correction.
type ArchivalAdjuster interface {
	ApplyArchivalAdjustment(ctx context.Context, archived int64) error
}

// ArchivalMigrator runs the nightly retention job: verified live entries
// older than the retention window merge into the archive under the same
// address-key rule ingestion uses, then the live copies are removed and
// the rolling stats counters adjusted. Pending entries never migrate; a
// report waiting on moderation stays visible to moderators regardless of
// age.
type ArchivalMigrator struct {
	verified reports.Store
	archive  ArchiveStore
	stats    ArchivalAdjuster
	audit    *audit.Logger

	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	lastRun *time.Time
}

// NewArchivalMigrator wires the nightly job. retentionDays is the live
// retention window in days.
func NewArchivalMigrator(verified reports.Store, archive ArchiveStore, stats ArchivalAdjuster, auditLog *audit.Logger, retentionDays int) *ArchivalMigrator {
	return &ArchivalMigrator{
		verified:  verified,
		archive:   archive,
		stats:     stats,
		audit:     auditLog,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one migration pass. A single entry failing to move is
// logged and counted, never fatal for the batch; the returned result
// says how many entries moved versus were attempted. The run is
// idempotent: entries that already migrated are simply no longer in the
// live store on the next pass.
func (m *ArchivalMigrator) Run(ctx context.Context) (models.MigrationResult, error) {
	start := m.now()
	cutoff := start.Add(-m.retention)

	entries, err := m.verified.All(ctx)
	if err != nil {
		m.audit.LogMigrationRun(ctx, models.MigrationResult{}, err)
		return models.MigrationResult{}, fmt.Errorf("scan live store: %w", err)
	}

	var result models.MigrationResult
	for key, r := range entries {
		if !r.AddedAt.Before(cutoff) {
			continue
		}
		result.Attempted++

		created, err := m.archive.Merge(ctx, key, r)
		if err != nil {
			result.Failed++
			metrics.MigrationEntriesTotal.WithLabelValues("failed").Inc()
			logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to archive report")
			continue
		}
		if err := m.verified.Delete(ctx, key); err != nil {
			// The archive holds the data; the stale live copy merges
			// again next run without double-counting only if removal
			// eventually succeeds, so this is a loud failure.
			result.Failed++
			metrics.MigrationEntriesTotal.WithLabelValues("failed").Inc()
			logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Archived report but failed to remove live copy")
			continue
		}

		result.Moved++
		outcome := "merged"
		if created {
			outcome = "moved"
		}
		metrics.MigrationEntriesTotal.WithLabelValues(outcome).Inc()
	}

	// The adjustment also resets the today counter, so it runs even when
	// nothing moved.
	if err := m.stats.ApplyArchivalAdjustment(ctx, int64(result.Moved)); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to adjust stats after migration; recompute will repair")
	}
	if n, err := m.archive.Count(ctx); err == nil {
		result.ArchivedCount = n
	}

	finished := m.now()
	m.mu.Lock()
	m.lastRun = &finished
	m.mu.Unlock()

	metrics.MigrationRunDuration.Observe(finished.Sub(start).Seconds())
	m.audit.LogMigrationRun(ctx, result, nil)
	logging.Ctx(ctx).Info().
		Int("attempted", result.Attempted).
		Int("moved", result.Moved).
		Int("failed", result.Failed).
		Int64("archive_size", result.ArchivedCount).
		Msg("Archival migration run completed")

	return result, nil
}

// LastRun returns when the most recent migration pass finished, or nil
// if none has run in this process. The health endpoint reports it.
func (m *ArchivalMigrator) LastRun() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRun == nil {
		return nil
	}
	t := *m.lastRun
	return &t
}
