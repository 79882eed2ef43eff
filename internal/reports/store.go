// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package reports defines the storage contract shared by the live store's
// pending/verified buckets and the archive store. Ingestion, verification,
// and stats code program against this interface and never know which
// physical tier they touch; only the archival migrator crosses tiers
// explicitly.
package reports

import (
	"context"

	"github.com/streetwatch/streetwatch/internal/models"
)

// Store is one bucket of reports keyed by address key.
//
// Implementations must serialize operations on the same key: Merge is an
// atomic read-modify-write, so concurrent duplicate submissions for one
// address never race to a lost update. Operations on different keys are
// independent.
type Store interface {
	// Get returns the report at key, or models.ErrNotFound.
	Get(ctx context.Context, key string) (*models.Report, error)

	// Put writes the report at key, replacing any existing record.
	Put(ctx context.Context, key string, r *models.Report) error

	// Delete removes the report at key. Deleting a missing key is not an
	// error; callers that care use Get first.
	Delete(ctx context.Context, key string) error

	// All returns every report in the bucket keyed by address key.
	All(ctx context.Context) (map[string]*models.Report, error)

	// Merge atomically applies the duplicate-merge rule: if key exists the
	// stored record becomes models.Merge(existing, incoming) and created is
	// false; otherwise incoming is stored (count floored at 1) and created
	// is true.
	Merge(ctx context.Context, key string, incoming *models.Report) (created bool, err error)

	// DeleteBatch removes the given keys, internally chunked to the
	// store's maximum batch size.
	DeleteBatch(ctx context.Context, keys []string) error

	// ReplaceAll atomically-per-batch replaces the bucket's contents with
	// entries: delete-all, then batched writes. Used by the consolidation
	// migration.
	ReplaceAll(ctx context.Context, entries map[string]*models.Report) error
}
