// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	address_key     VARCHAR PRIMARY KEY,
	added_at        TIMESTAMP NOT NULL,
	address         VARCHAR NOT NULL,
	additional_info VARCHAR NOT NULL,
	lat             DOUBLE NOT NULL,
	lng             DOUBLE NOT NULL,
	reported_count  BIGINT NOT NULL,
	image_path      VARCHAR NOT NULL DEFAULT '',
	image_url       VARCHAR NOT NULL DEFAULT '',
	verified_at     TIMESTAMP
)`

// DB is the DuckDB-backed archive tier holding reports migrated out of
// the live store. It embeds the same reports.Store surface as a live
// bucket so the migrator and maintenance handlers treat both ends
// uniformly.
type DB struct {
	conn      *sql.DB
	batchSize int
}

// Open opens (or creates) the archive database and ensures the schema.
func Open(cfg config.ArchiveConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// DuckDB is embedded and single-writer; a small pool is plenty.
	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	if _, err := conn.ExecContext(pingCtx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > config.MaxStoreBatchSize {
		batchSize = config.MaxStoreBatchSize
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", threads).
		Int("batch_size", batchSize).
		Msg("Archive store opened")

	return &DB{conn: conn, batchSize: batchSize}, nil
}

// Close closes the underlying database.
func (a *DB) Close() error {
	return a.conn.Close()
}

// Ping verifies the database answers queries. Used by the readiness probe.
func (a *DB) Ping(ctx context.Context) error {
	return a.conn.PingContext(ctx)
}

// Count returns the number of archived reports.
func (a *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := a.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archive: %w", err)
	}
	return n, nil
}
