// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package migrate

import (
	"context"
	"fmt"

	"github.com/streetwatch/streetwatch/internal/addresskey"
	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
)

// Consolidator re-keys a store's contents under the canonical
// address-key scheme. Entries stored under legacy or ad hoc identifiers
// regroup by the key recomputed from their formatted address; duplicates
// merge with the same most-recent-wins, summed-count rule ingestion
// uses.
type Consolidator struct {
	audit *audit.Logger
}

// NewConsolidator returns a consolidator that audits each run.
func NewConsolidator(auditLog *audit.Logger) *Consolidator {
	return &Consolidator{audit: auditLog}
}

// ConsolidationSummary reports what one consolidation run did.
type ConsolidationSummary struct {
	Store   string `json:"store"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Dropped int    `json:"dropped"`
}

// Run consolidates the named store. The replacement is atomic from the
// caller's perspective: the store's ReplaceAll clears and rewrites in
// batches within the store's limits. Entries whose recomputed key is
// empty cannot be stored and are dropped, counted in the summary.
func (c *Consolidator) Run(ctx context.Context, name string, store reports.Store) (ConsolidationSummary, error) {
	entries, err := store.All(ctx)
	if err != nil {
		return ConsolidationSummary{}, fmt.Errorf("scan %s store: %w", name, err)
	}

	consolidated := models.ConsolidateByKey(entries, addresskey.MakeKey)

	if err := store.ReplaceAll(ctx, consolidated); err != nil {
		return ConsolidationSummary{}, fmt.Errorf("replace %s store contents: %w", name, err)
	}

	summary := ConsolidationSummary{
		Store:  name,
		Before: len(entries),
		After:  len(consolidated),
	}
	var kept int64
	for _, r := range consolidated {
		kept += r.Count()
	}
	var total int64
	for _, r := range entries {
		total += r.Count()
	}
	summary.Dropped = int(total - kept)

	c.audit.LogMaintenance(ctx, audit.EventTypeConsolidation, audit.SystemActor(),
		"Store consolidated under canonical address keys", summary)
	logging.Ctx(ctx).Info().
		Str("store", name).
		Int("before", summary.Before).
		Int("after", summary.After).
		Int("dropped", summary.Dropped).
		Msg("Consolidation completed")

	return summary, nil
}
