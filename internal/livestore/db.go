// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package livestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
	"github.com/streetwatch/streetwatch/internal/validation"
)

// Key prefixes for BadgerDB storage. Rate-limit counters share this
// database under their own prefix (see internal/ratelimit).
const (
	pendingKeyPrefix  = "pending/"
	verifiedKeyPrefix = "verified/"
	statsKey          = "stats"
)

// DB is the BadgerDB-backed live store. It owns the database handle and
// exposes the pending and verified buckets plus the stats record.
type DB struct {
	db *badger.DB

	pending  *bucketStore
	verified *bucketStore
}

// Open opens (or creates) the live store at the configured path.
func Open(cfg config.LiveStoreConfig) (*DB, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil // Suppress BadgerDB logs
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open live store: %w", err)
	}

	s := &DB{
		db:       db,
		pending:  &bucketStore{db: db, prefix: pendingKeyPrefix, name: "live_pending"},
		verified: &bucketStore{db: db, prefix: verifiedKeyPrefix, name: "live_verified"},
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Live store opened")
	return s, nil
}

// Close flushes and closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Badger returns the raw database handle for components that colocate
// their records here (rate-limit counters, persistent audit log).
func (s *DB) Badger() *badger.DB {
	return s.db
}

// Pending returns the bucket holding reports awaiting moderation review.
func (s *DB) Pending() reports.Store {
	return s.pending
}

// Verified returns the bucket holding approved, publicly visible reports.
func (s *DB) Verified() reports.Store {
	return s.verified
}

// Ping verifies the database is readable. Used by the readiness probe.
func (s *DB) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("live store closed")
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(statsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// GetStats returns the current stats snapshot. A store that has never
// recorded a submission returns a zero snapshot.
func (s *DB) GetStats(ctx context.Context) (models.StatsSnapshot, error) {
	start := time.Now()
	var snap models.StatsSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	metrics.ObserveStoreOperation("live_stats", "get", start, err)
	return snap, err
}

// SetStats overwrites the stats snapshot. Used by the recompute operation;
// normal submissions go through IncrementStats.
func (s *DB) SetStats(ctx context.Context, snap models.StatsSnapshot) error {
	start := time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statsKey), data)
	})
	metrics.ObserveStoreOperation("live_stats", "set", start, err)
	return err
}

// IncrementStats records one accepted submission in the rolling counters:
// total and this-week always increment, today only when addedAt falls on
// the same UTC day as now. The read-modify-write runs in a single
// transaction so concurrent submissions never lose an increment.
func (s *DB) IncrementStats(ctx context.Context, addedAt, now time.Time) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		snap, err := readStats(txn)
		if err != nil {
			return err
		}
		snap.Total++
		snap.ThisWeek++
		if validation.SameUTCDay(addedAt, now) {
			snap.Today++
		}
		return writeStats(txn, snap)
	})
	metrics.ObserveStoreOperation("live_stats", "increment", start, err)
	return err
}

// ApplyArchivalAdjustment is called after the nightly migration moves
// entries out of the live tier: the today counter resets (everything
// left is older than today) and this-week drops by the number archived,
// floored at zero.
func (s *DB) ApplyArchivalAdjustment(ctx context.Context, archived int64) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		snap, err := readStats(txn)
		if err != nil {
			return err
		}
		snap.Today = 0
		snap.ThisWeek -= archived
		if snap.ThisWeek < 0 {
			snap.ThisWeek = 0
		}
		return writeStats(txn, snap)
	})
	metrics.ObserveStoreOperation("live_stats", "archival_adjust", start, err)
	return err
}

func readStats(txn *badger.Txn) (models.StatsSnapshot, error) {
	var snap models.StatsSnapshot
	item, err := txn.Get([]byte(statsKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("get stats: %w", err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &snap)
	})
	return snap, err
}

func writeStats(txn *badger.Txn, snap models.StatsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return txn.Set([]byte(statsKey), data)
}
