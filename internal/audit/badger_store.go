// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const auditKeyPrefix = "audit/"

// BadgerStore implements Store on the shared live-store database, so
// audit history survives restarts without a separate datastore. Keys
// embed a zero-padded nanosecond timestamp, which makes reverse
// iteration return events most recent first.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed audit store over an already
// open database handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func eventKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", auditKeyPrefix, e.Timestamp.UnixNano(), e.ID))
}

// Save persists an audit event.
func (s *BadgerStore) Save(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event), data)
	})
}

// Query retrieves events matching the filter, most recent first.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var results []Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		seek := append([]byte(auditKeyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(auditKeyPrefix)); it.Next() {
			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}
			if !matchesFilter(&event, &filter) {
				continue
			}
			results = append(results, event)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	filter.Limit = 0
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(auditKeyPrefix)); it.ValidForPrefix([]byte(auditKeyPrefix)); it.Next() {
			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}
			if matchesFilter(&event, &filter) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Delete removes events older than the given time. Timestamp-ordered
// keys mean the scan can stop at the first event inside the retention
// window.
func (s *BadgerStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := fmt.Sprintf("%s%020d", auditKeyPrefix, olderThan.UnixNano())

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(auditKeyPrefix)); it.ValidForPrefix([]byte(auditKeyPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= cutoff {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, fmt.Errorf("delete audit event: %w", err)
		}
	}
	return int64(len(stale)), nil
}
