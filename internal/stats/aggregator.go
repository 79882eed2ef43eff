// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package stats rebuilds the aggregate counters from first principles.
// The counters move incrementally on ingestion; this package is the
// repair path when they drift. Recompute must always reproduce exactly
// what the incremental updates would have produced over the same data.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
	"github.com/streetwatch/streetwatch/internal/validation"
)

// Snapshotter reads and replaces the persisted stats record.
type Snapshotter interface {
	GetStats(ctx context.Context) (models.StatsSnapshot, error)
	SetStats(ctx context.Context, snap models.StatsSnapshot) error
}

// Aggregator recomputes the counters by scanning both tiers of the live
// store and the archive.
type Aggregator struct {
	pending  reports.Store
	verified reports.Store
	archive  reports.Store
	stats    Snapshotter
	audit    *audit.Logger

	now func() time.Time
}

// NewAggregator wires the recompute path over all three report stores.
func NewAggregator(pending, verified, archive reports.Store, stats Snapshotter, auditLog *audit.Logger) *Aggregator {
	return &Aggregator{
		pending:  pending,
		verified: verified,
		archive:  archive,
		stats:    stats,
		audit:    auditLog,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recompute scans every entry in every store, sums reported counts into
// the three counters, and overwrites the stats record wholesale. It
// takes no lock: concurrent writers simply land in the next recompute,
// the snapshot reflects one consistent scan.
func (a *Aggregator) Recompute(ctx context.Context) (models.StatsSnapshot, error) {
	now := a.now()
	weekCutoff := now.Add(-7 * 24 * time.Hour)

	var snap models.StatsSnapshot
	for _, src := range []struct {
		name  string
		store reports.Store
	}{
		{"pending", a.pending},
		{"verified", a.verified},
		{"archive", a.archive},
	} {
		entries, err := src.store.All(ctx)
		if err != nil {
			return models.StatsSnapshot{}, fmt.Errorf("scan %s store: %w", src.name, err)
		}
		for _, r := range entries {
			n := r.Count()
			snap.Total += n
			if validation.SameUTCDay(r.AddedAt, now) {
				snap.Today += n
			}
			if r.AddedAt.After(weekCutoff) {
				snap.ThisWeek += n
			}
		}
	}

	if err := a.stats.SetStats(ctx, snap); err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("write recomputed stats: %w", err)
	}

	a.audit.LogMaintenance(ctx, audit.EventTypeStatsRecompute, audit.SystemActor(), "Stats recomputed from both stores", snap)
	logging.Ctx(ctx).Info().
		Int64("total", snap.Total).
		Int64("today", snap.Today).
		Int64("this_week", snap.ThisWeek).
		Msg("Stats recomputed")
	return snap, nil
}
