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
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
)

// bucketStore is one prefix-scoped view over the shared BadgerDB,
// implementing reports.Store for the pending and verified buckets.
type bucketStore struct {
	db     *badger.DB
	prefix string
	name   string // metrics label
}

func (b *bucketStore) storageKey(key string) []byte {
	return []byte(b.prefix + key)
}

// Get returns the report at key, or models.ErrNotFound.
func (b *bucketStore) Get(ctx context.Context, key string) (*models.Report, error) {
	start := time.Now()
	var report models.Report
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.storageKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get report: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if errors.Is(err, models.ErrNotFound) {
		metrics.ObserveStoreOperation(b.name, "get", start, nil)
		return nil, err
	}
	metrics.ObserveStoreOperation(b.name, "get", start, err)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Put writes the report at key, replacing any existing record.
func (b *bucketStore) Put(ctx context.Context, key string, r *models.Report) error {
	start := time.Now()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.storageKey(key), data)
	})
	metrics.ObserveStoreOperation(b.name, "put", start, err)
	return err
}

// Delete removes the report at key. Missing keys are not an error.
func (b *bucketStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.storageKey(key))
	})
	metrics.ObserveStoreOperation(b.name, "delete", start, err)
	return err
}

// All returns every report in the bucket keyed by address key.
func (b *bucketStore) All(ctx context.Context) (map[string]*models.Report, error) {
	start := time.Now()
	entries := make(map[string]*models.Report)
	prefix := []byte(b.prefix)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			var report models.Report
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &report)
			}); err != nil {
				return fmt.Errorf("decode report %q: %w", key, err)
			}
			entries[key] = &report
		}
		return nil
	})
	metrics.ObserveStoreOperation(b.name, "all", start, err)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Merge atomically applies the duplicate-merge rule inside a single
// transaction: concurrent submissions for the same address serialize here
// and both counts survive.
func (b *bucketStore) Merge(ctx context.Context, key string, incoming *models.Report) (bool, error) {
	start := time.Now()
	var created bool
	var err error
	for {
		created = false
		err = b.db.Update(func(txn *badger.Txn) error {
			stored := incoming
			item, err := txn.Get(b.storageKey(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				created = true
				// Normalize the count so a fresh record never persists zero.
				c := *incoming
				c.ReportedCount = incoming.Count()
				stored = &c
			case err != nil:
				return fmt.Errorf("get report: %w", err)
			default:
				var existing models.Report
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); err != nil {
					return fmt.Errorf("decode report %q: %w", key, err)
				}
				stored = models.Merge(&existing, incoming)
			}

			data, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			return txn.Set(b.storageKey(key), data)
		})
		// Concurrent submissions for the same address conflict on the
		// report key; retry until the transaction commits or the
		// request is abandoned.
		if errors.Is(err, badger.ErrConflict) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			continue
		}
		break
	}
	metrics.ObserveStoreOperation(b.name, "merge", start, err)
	if err != nil {
		return false, err
	}
	return created, nil
}

// DeleteBatch removes the given keys in chunks so a large maintenance
// delete never exceeds BadgerDB transaction limits.
func (b *bucketStore) DeleteBatch(ctx context.Context, keys []string) error {
	start := time.Now()
	var err error
	for _, chunk := range chunkKeys(keys, config.MaxStoreBatchSize) {
		if err = ctx.Err(); err != nil {
			break
		}
		err = b.db.Update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				if err := txn.Delete(b.storageKey(key)); err != nil {
					return fmt.Errorf("delete report %q: %w", key, err)
				}
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	metrics.ObserveStoreOperation(b.name, "delete_batch", start, err)
	return err
}

// ReplaceAll swaps the bucket's contents for entries: existing keys are
// deleted, then the new set is written, both in bounded chunks.
func (b *bucketStore) ReplaceAll(ctx context.Context, entries map[string]*models.Report) error {
	start := time.Now()
	err := b.replaceAll(ctx, entries)
	metrics.ObserveStoreOperation(b.name, "replace_all", start, err)
	return err
}

func (b *bucketStore) replaceAll(ctx context.Context, entries map[string]*models.Report) error {
	existing, err := b.All(ctx)
	if err != nil {
		return err
	}

	stale := make([]string, 0, len(existing))
	for key := range existing {
		if _, keep := entries[key]; !keep {
			stale = append(stale, key)
		}
	}
	if err := b.DeleteBatch(ctx, stale); err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	for _, chunk := range chunkKeys(keys, config.MaxStoreBatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				data, err := json.Marshal(entries[key])
				if err != nil {
					return fmt.Errorf("marshal report %q: %w", key, err)
				}
				if err := txn.Set(b.storageKey(key), data); err != nil {
					return fmt.Errorf("set report %q: %w", key, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// chunkKeys splits keys into slices of at most size elements.
func chunkKeys(keys []string, size int) [][]string {
	if size <= 0 {
		size = config.MaxStoreBatchSize
	}
	var chunks [][]string
	for len(keys) > 0 {
		n := size
		if len(keys) < n {
			n = len(keys)
		}
		chunks = append(chunks, keys[:n])
		keys = keys[n:]
	}
	return chunks
}
