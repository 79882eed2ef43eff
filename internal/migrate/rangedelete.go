// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
)

// CutoffLayout is the accepted cutoff date format for range deletion.
const CutoffLayout = "2006-01-02"

// ErrNotConfirmed is returned when the operator declines the deletion.
var ErrNotConfirmed = errors.New("range delete not confirmed")

// Confirmer asks the operator whether count matching entries should be
// deleted. It is the interactive y/yes prompt on a CLI, or the confirm
// parameter check on the admin API.
type Confirmer func(ctx context.Context, count int64) (string, error)

// ConfirmAnswer interprets an operator's reply. Only "y" and "yes",
// case-insensitive, confirm.
func ConfirmAnswer(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// RangeDeleter removes every report added on or after a cutoff date from
// both stores. Destructive and interactive: it counts first, asks for
// confirmation, and only then deletes.
type RangeDeleter struct {
	pending  reports.Store
	verified reports.Store
	archive  ArchiveStore
	audit    *audit.Logger
}

// NewRangeDeleter wires the deleter over both live buckets and the
// archive.
func NewRangeDeleter(pending, verified reports.Store, archive ArchiveStore, auditLog *audit.Logger) *RangeDeleter {
	return &RangeDeleter{
		pending:  pending,
		verified: verified,
		archive:  archive,
		audit:    auditLog,
	}
}

// DeleteSince deletes every entry with addedAt >= cutoff. A malformed
// cutoff fails before anything is scanned. With dryRun the counts come
// back without touching data and without prompting. When nothing
// matches, nothing is deleted and no confirmation is requested.
func (d *RangeDeleter) DeleteSince(ctx context.Context, cutoffDate string, confirm Confirmer, dryRun bool) (models.RangeDeleteResult, error) {
	cutoff, err := time.ParseInLocation(CutoffLayout, cutoffDate, time.UTC)
	if err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("%w: cutoff must match %s", models.ErrValidation, CutoffLayout)
	}

	liveKeys, err := d.collectLiveKeys(ctx, cutoff)
	if err != nil {
		return models.RangeDeleteResult{}, err
	}
	archiveCount, err := d.archive.CountAddedSince(ctx, cutoff)
	if err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("count archive entries: %w", err)
	}

	result := models.RangeDeleteResult{
		Live:    len(liveKeys[0]) + len(liveKeys[1]),
		Archive: int(archiveCount),
	}
	total := int64(result.Live) + int64(result.Archive)

	if dryRun {
		result.DryRun = true
		return result, nil
	}
	if total == 0 {
		return result, nil
	}

	answer, err := confirm(ctx, total)
	if err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("read confirmation: %w", err)
	}
	if !ConfirmAnswer(answer) {
		return models.RangeDeleteResult{}, ErrNotConfirmed
	}

	if err := d.pending.DeleteBatch(ctx, liveKeys[0]); err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("delete pending entries: %w", err)
	}
	if err := d.verified.DeleteBatch(ctx, liveKeys[1]); err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("delete verified entries: %w", err)
	}
	deleted, err := d.archive.DeleteAddedSince(ctx, cutoff)
	if err != nil {
		return models.RangeDeleteResult{}, fmt.Errorf("delete archive entries: %w", err)
	}
	result.Archive = int(deleted)

	d.audit.LogMaintenance(ctx, audit.EventTypeRangeDelete, audit.SystemActor(),
		"Reports deleted since "+cutoffDate, result)
	logging.Ctx(ctx).Info().
		Str("cutoff", cutoffDate).
		Int("live", result.Live).
		Int("archive", result.Archive).
		Msg("Range delete completed")

	return result, nil
}

// collectLiveKeys returns the pending and verified keys at or past the
// cutoff, in that order.
func (d *RangeDeleter) collectLiveKeys(ctx context.Context, cutoff time.Time) ([2][]string, error) {
	var out [2][]string
	for i, store := range []reports.Store{d.pending, d.verified} {
		entries, err := store.All(ctx)
		if err != nil {
			return out, fmt.Errorf("scan live store: %w", err)
		}
		for key, r := range entries {
			if !r.AddedAt.Before(cutoff) {
				out[i] = append(out[i], key)
			}
		}
	}
	return out, nil
}
