// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/models"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHashClientKey(t *testing.T) {
	t.Parallel()

	h1, err := HashClientKey("salt-a", "203.0.113.7")
	if err != nil {
		t.Fatalf("HashClientKey() error = %v", err)
	}
	h2, err := HashClientKey("salt-a", "203.0.113.7")
	if err != nil {
		t.Fatalf("HashClientKey() error = %v", err)
	}
	if h1 != h2 {
		t.Error("same salt and address must hash identically")
	}

	h3, _ := HashClientKey("salt-b", "203.0.113.7")
	if h1 == h3 {
		t.Error("different salts must produce different hashes")
	}

	h4, _ := HashClientKey("salt-a", "203.0.113.8")
	if h1 == h4 {
		t.Error("different addresses must produce different hashes")
	}

	if _, err := HashClientKey("salt-a", ""); !errors.Is(err, ErrMissingClientKey) {
		t.Errorf("empty address error = %v, want ErrMissingClientKey", err)
	}
}

func TestAllowEnforcesDailyLimit(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	l := New(db, config.RateLimitConfig{DailyLimit: 3, Salt: "test-salt"})
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		remaining, err := l.Allow(ctx, "submit", "198.51.100.1", now)
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if want := 2 - i; remaining != want {
			t.Errorf("Allow() #%d remaining = %d, want %d", i+1, remaining, want)
		}
	}

	if _, err := l.Allow(ctx, "submit", "198.51.100.1", now); !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("Allow() over limit error = %v, want ErrQuotaExceeded", err)
	}

	// Another client is unaffected.
	if _, err := l.Allow(ctx, "submit", "198.51.100.2", now); err != nil {
		t.Errorf("Allow() other client error = %v", err)
	}
}

func TestAllowResetsAtUTCDayBoundary(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	l := New(db, config.RateLimitConfig{DailyLimit: 1, Salt: "test-salt"})
	ctx := context.Background()

	lateTonight := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	if _, err := l.Allow(ctx, "submit", "198.51.100.9", lateTonight); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if _, err := l.Allow(ctx, "submit", "198.51.100.9", lateTonight); !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("Allow() same day error = %v, want ErrQuotaExceeded", err)
	}

	nextDay := time.Date(2026, 8, 30, 0, 1, 0, 0, time.UTC)
	if _, err := l.Allow(ctx, "submit", "198.51.100.9", nextDay); err != nil {
		t.Errorf("Allow() next UTC day error = %v, want quota reset", err)
	}
}

func TestAllowMissingIdentity(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	l := New(db, config.RateLimitConfig{DailyLimit: 5, Salt: "test-salt"})

	if _, err := l.Allow(context.Background(), "submit", "", time.Now()); !errors.Is(err, ErrMissingClientKey) {
		t.Errorf("Allow(empty) error = %v, want ErrMissingClientKey", err)
	}
}

func TestAllowConcurrentNeverOvershoots(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	const limit = 10
	l := New(db, config.RateLimitConfig{DailyLimit: limit, Salt: "test-salt"})
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	var allowed, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Allow(ctx, "submit", "198.51.100.50", now)
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, models.ErrQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("Allow() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != limit {
		t.Errorf("allowed = %d, want exactly %d", allowed.Load(), limit)
	}
	if rejected.Load() != limit {
		t.Errorf("rejected = %d, want %d", rejected.Load(), limit)
	}
}

func TestPeek(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	l := New(db, config.RateLimitConfig{DailyLimit: 4, Salt: "test-salt"})
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	remaining, err := l.Peek(ctx, "submit", "198.51.100.77", now)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if remaining != 4 {
		t.Errorf("Peek() fresh = %d, want 4", remaining)
	}

	if _, err := l.Allow(ctx, "submit", "198.51.100.77", now); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	remaining, err = l.Peek(ctx, "submit", "198.51.100.77", now)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if remaining != 3 {
		t.Errorf("Peek() after one = %d, want 3", remaining)
	}

	// Peek does not consume quota.
	if r, _ := l.Peek(ctx, "submit", "198.51.100.77", now); r != 3 {
		t.Errorf("Peek() repeated = %d, want 3", r)
	}
}
