// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package ratelimit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
)

// Key prefix inside the shared live-store database.
const counterKeyPrefix = "ratelimit/"

// defaultCounterTTL keeps a counter alive slightly past its UTC day so it
// never expires while still current.
const defaultCounterTTL = 25 * time.Hour

// ErrMissingClientKey is returned when no client identity could be
// derived from the request. Submissions without an identity are rejected
// outright rather than sharing an anonymous bucket.
var ErrMissingClientKey = errors.New("client key is empty")


// Limiter enforces the per-client daily submission quota. Counters live
// in the live store's BadgerDB under a salted one-way hash of the client
// address, keyed by UTC day, with a TTL so old days vanish on their own.
type Limiter struct {
	db    *badger.DB
	limit int
	salt  string
	ttl   time.Duration
}

// New creates a Limiter over the shared database handle.
func New(db *badger.DB, cfg config.RateLimitConfig) *Limiter {
	ttl := cfg.CounterTTL
	if ttl <= 0 {
		ttl = defaultCounterTTL
	}
	return &Limiter{db: db, limit: cfg.DailyLimit, salt: cfg.Salt, ttl: ttl}
}

// HashClientKey derives the stored client identifier from a raw client
// address. The hash is keyed with the deployment salt so the stored
// counters cannot be reversed to addresses, and an empty address is a
// hard error.
func HashClientKey(salt, clientAddr string) (string, error) {
	if clientAddr == "" {
		return "", ErrMissingClientKey
	}
	key := []byte(salt)
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("init client hash: %w", err)
	}
	h.Write([]byte(clientAddr))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// counterKey embeds the UTC day, so date rollover needs no stored date
// field: yesterday's counter is simply a different key that its TTL will
// reap.
// Hash applies the limiter's configured salt to a client address. Other
// components (audit attribution) use this so one deployment has exactly
// one notion of client identity.
func (l *Limiter) Hash(clientAddr string) (string, error) {
	return HashClientKey(l.salt, clientAddr)
}

func (l *Limiter) counterKey(bucket, clientHash string, now time.Time) []byte {
	day := now.UTC().Format("2006-01-02")
	return []byte(counterKeyPrefix + bucket + "_" + clientHash + "/" + day)
}

// Allow checks and consumes one unit of the client's daily quota in a
// single transaction. It returns the remaining quota after this
// submission, models.ErrQuotaExceeded when the day's budget is spent, or
// ErrMissingClientKey for an empty address. The check and the increment
// are atomic, so a burst of concurrent submissions cannot overshoot the
// limit.
func (l *Limiter) Allow(ctx context.Context, bucket, clientAddr string, now time.Time) (int, error) {
	clientHash, err := HashClientKey(l.salt, clientAddr)
	if err != nil {
		metrics.RateLimitRejections.WithLabelValues("missing_identity").Inc()
		return 0, err
	}
	if l.limit <= 0 {
		// Quota disabled.
		return 0, nil
	}

	key := l.counterKey(bucket, clientHash, now)

	var remaining int
	for {
		err = l.db.Update(func(txn *badger.Txn) error {
			count := 0
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// First submission of the day.
			case err != nil:
				return fmt.Errorf("read counter: %w", err)
			default:
				if err := item.Value(func(val []byte) error {
					n, err := strconv.Atoi(string(val))
					if err != nil {
						return fmt.Errorf("decode counter: %w", err)
					}
					count = n
					return nil
				}); err != nil {
					return err
				}
			}

			if count >= l.limit {
				return models.ErrQuotaExceeded
			}

			count++
			remaining = l.limit - count
			entry := badger.NewEntry(key, []byte(strconv.Itoa(count))).WithTTL(l.ttl)
			return txn.SetEntry(entry)
		})
		// Concurrent submissions from the same client conflict on the
		// counter key; retry until the transaction commits or the
		// request is abandoned.
		if errors.Is(err, badger.ErrConflict) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			continue
		}
		break
	}

	if errors.Is(err, models.ErrQuotaExceeded) {
		metrics.RateLimitRejections.WithLabelValues(bucket).Inc()
		logging.Ctx(ctx).Debug().
			Str("client_hash", clientHash[:12]).
			Int("limit", l.limit).
			Msg("Daily submission quota exceeded")
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit check: %w", err)
	}
	return remaining, nil
}

// Peek reports how much quota the client has left today without
// consuming any.
func (l *Limiter) Peek(ctx context.Context, bucket, clientAddr string, now time.Time) (int, error) {
	clientHash, err := HashClientKey(l.salt, clientAddr)
	if err != nil {
		return 0, err
	}
	if l.limit <= 0 {
		return 0, nil
	}

	count := 0
	err = l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(l.counterKey(bucket, clientHash, now))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		return item.Value(func(val []byte) error {
			n, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("decode counter: %w", err)
			}
			count = n
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
