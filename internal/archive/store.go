// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
)

const reportColumns = `address_key, added_at, address, additional_info, lat, lng, reported_count, image_path, image_url, verified_at`

// upsertSQL replaces the whole row on key conflict. Merge semantics are
// applied in Go before writing; the SQL layer only ever stores the result.
const upsertSQL = `
INSERT INTO reports (` + reportColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (address_key) DO UPDATE SET
	added_at = excluded.added_at,
	address = excluded.address,
	additional_info = excluded.additional_info,
	lat = excluded.lat,
	lng = excluded.lng,
	reported_count = excluded.reported_count,
	image_path = excluded.image_path,
	image_url = excluded.image_url,
	verified_at = excluded.verified_at`

func upsertArgs(key string, r *models.Report) []any {
	var verifiedAt any
	if !r.VerifiedAt.IsZero() {
		verifiedAt = r.VerifiedAt.UTC()
	}
	return []any{
		key, r.AddedAt.UTC(), r.Address, r.AdditionalInfo,
		r.Lat, r.Lng, r.Count(), r.ImagePath, r.ImageURL, verifiedAt,
	}
}

func scanReport(scan func(dest ...any) error) (string, *models.Report, error) {
	var (
		key        string
		r          models.Report
		verifiedAt sql.NullTime
	)
	err := scan(&key, &r.AddedAt, &r.Address, &r.AdditionalInfo,
		&r.Lat, &r.Lng, &r.ReportedCount, &r.ImagePath, &r.ImageURL, &verifiedAt)
	if err != nil {
		return "", nil, err
	}
	r.AddedAt = r.AddedAt.UTC()
	if verifiedAt.Valid {
		r.VerifiedAt = verifiedAt.Time.UTC()
	}
	return key, &r, nil
}

// Get returns the archived report at key, or models.ErrNotFound.
func (a *DB) Get(ctx context.Context, key string) (*models.Report, error) {
	start := time.Now()
	row := a.conn.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE address_key = ?`, key)
	_, r, err := scanReport(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveStoreOperation("archive", "get", start, nil)
		return nil, models.ErrNotFound
	}
	metrics.ObserveStoreOperation("archive", "get", start, err)
	if err != nil {
		return nil, fmt.Errorf("get archived report: %w", err)
	}
	return r, nil
}

// Put writes the report at key, replacing any existing row.
func (a *DB) Put(ctx context.Context, key string, r *models.Report) error {
	start := time.Now()
	_, err := a.conn.ExecContext(ctx, upsertSQL, upsertArgs(key, r)...)
	metrics.ObserveStoreOperation("archive", "put", start, err)
	if err != nil {
		return fmt.Errorf("put archived report: %w", err)
	}
	return nil
}

// Delete removes the report at key. Missing keys are not an error.
func (a *DB) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := a.conn.ExecContext(ctx, `DELETE FROM reports WHERE address_key = ?`, key)
	metrics.ObserveStoreOperation("archive", "delete", start, err)
	if err != nil {
		return fmt.Errorf("delete archived report: %w", err)
	}
	return nil
}

// All returns every archived report keyed by address key.
func (a *DB) All(ctx context.Context) (map[string]*models.Report, error) {
	start := time.Now()
	entries, err := a.all(ctx)
	metrics.ObserveStoreOperation("archive", "all", start, err)
	return entries, err
}

func (a *DB) all(ctx context.Context) (map[string]*models.Report, error) {
	rows, err := a.conn.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports`)
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*models.Report)
	for rows.Next() {
		key, r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("decode archived report: %w", err)
		}
		entries[key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	return entries, nil
}

// Merge applies the duplicate-merge rule inside one SQL transaction.
// DuckDB serializes writers, so the read-modify-write is atomic against
// concurrent migration batches.
func (a *DB) Merge(ctx context.Context, key string, incoming *models.Report) (bool, error) {
	start := time.Now()
	created, err := a.merge(ctx, key, incoming)
	metrics.ObserveStoreOperation("archive", "merge", start, err)
	return created, err
}

func (a *DB) merge(ctx context.Context, key string, incoming *models.Report) (bool, error) {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE address_key = ?`, key)
	_, existing, err := scanReport(row.Scan)

	created := false
	stored := incoming
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("read for merge: %w", err)
	default:
		stored = models.Merge(existing, incoming)
	}

	if _, err := tx.ExecContext(ctx, upsertSQL, upsertArgs(key, stored)...); err != nil {
		return false, fmt.Errorf("write merged report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit merge: %w", err)
	}
	return created, nil
}

// DeleteBatch removes the given keys in chunks of at most the configured
// batch size.
func (a *DB) DeleteBatch(ctx context.Context, keys []string) error {
	start := time.Now()
	err := a.deleteBatch(ctx, keys)
	metrics.ObserveStoreOperation("archive", "delete_batch", start, err)
	return err
}

func (a *DB) deleteBatch(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := a.batchSize
		if len(keys) < n {
			n = len(keys)
		}
		chunk := keys[:n]
		keys = keys[n:]

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		query := `DELETE FROM reports WHERE address_key IN (` + placeholders + `)`
		if _, err := a.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	return nil
}

// ReplaceAll swaps the archive's contents for entries in one transaction.
func (a *DB) ReplaceAll(ctx context.Context, entries map[string]*models.Report) error {
	start := time.Now()
	err := a.replaceAll(ctx, entries)
	metrics.ObserveStoreOperation("archive", "replace_all", start, err)
	return err
}

func (a *DB) replaceAll(ctx context.Context, entries map[string]*models.Report) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("clear archive: %w", err)
	}
	for key, r := range entries {
		if _, err := tx.ExecContext(ctx, upsertSQL, upsertArgs(key, r)...); err != nil {
			return fmt.Errorf("write report %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// DeleteAddedSince removes every archived report whose added_at falls on
// or after cutoff, returning the number of rows removed. Backs the
// range-delete maintenance operation.
func (a *DB) DeleteAddedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := a.conn.ExecContext(ctx,
		`DELETE FROM reports WHERE added_at >= ?`, cutoff.UTC())
	metrics.ObserveStoreOperation("archive", "delete_since", start, err)
	if err != nil {
		return 0, fmt.Errorf("range delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("range delete count: %w", err)
	}
	return n, nil
}

// CountAddedSince returns how many archived reports a DeleteAddedSince
// with the same cutoff would remove. Used for dry runs.
func (a *DB) CountAddedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := a.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE added_at >= ?`, cutoff.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("range count: %w", err)
	}
	return n, nil
}
