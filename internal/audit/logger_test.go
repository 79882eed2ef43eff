// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/streetwatch/streetwatch/internal/models"
)

func drainLogger(t *testing.T, l *Logger) {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestLoggerWritesEvents(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	l := NewLogger(store, nil)

	ctx := context.Background()
	l.LogSubmissionFlagged(ctx, SubmitterActor("abc123"), "123 Main St", "toxicity")
	l.LogReportSubmitted(ctx, SubmitterActor("abc123"), "123_main_st", true)
	l.LogVerificationDecision(ctx, VerifierActor("mod-1", []string{"verifier"}), "123_main_st", "verify", OutcomeSuccess, nil)
	drainLogger(t, l)

	events, err := store.Query(ctx, DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("stored events = %d, want 3", len(events))
	}

	// Most recent first.
	if events[0].Type != EventTypeReportVerified {
		t.Errorf("events[0].Type = %s, want %s", events[0].Type, EventTypeReportVerified)
	}
	for _, e := range events {
		if e.ID == "" {
			t.Error("event ID not generated")
		}
		if e.Timestamp.IsZero() {
			t.Error("event timestamp not set")
		}
	}
}

func TestLoggerFlaggedEventCarriesLabel(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	l := NewLogger(store, nil)

	l.LogSubmissionFlagged(context.Background(), SubmitterActor("client"), "5 Oak Ave", "harassment")
	drainLogger(t, l)

	events, err := store.Query(context.Background(), QueryFilter{Types: []EventType{EventTypeReportFlagged}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("flagged events = %d, want 1", len(events))
	}
	if string(events[0].Metadata) != `{"label":"harassment"}` {
		t.Errorf("Metadata = %s, want classifier label", events[0].Metadata)
	}
}

func TestLoggerDisabled(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	l := NewLogger(store, &Config{Enabled: false, BufferSize: 10})

	l.LogQuotaExceeded(context.Background(), SubmitterActor("client"))
	drainLogger(t, l)

	n, err := store.Count(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d with logging disabled, want 0", n)
	}
}

func TestLoggerMigrationOutcome(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	l := NewLogger(store, nil)

	l.LogMigrationRun(context.Background(), models.MigrationResult{Attempted: 5, Moved: 5}, nil)
	l.LogMigrationRun(context.Background(), models.MigrationResult{Attempted: 5, Moved: 3, Failed: 2}, nil)
	drainLogger(t, l)

	ok, err := store.Query(context.Background(), QueryFilter{Outcomes: []Outcome{OutcomeSuccess}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(ok) != 1 {
		t.Errorf("success events = %d, want 1", len(ok))
	}

	failed, err := store.Query(context.Background(), QueryFilter{Outcomes: []Outcome{OutcomeFailure}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("failure events = %d, want 1 (partial failures count)", len(failed))
	}
}

func TestMemoryStoreFilters(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	save := func(id string, typ EventType, actor, target string, ts time.Time) {
		t.Helper()
		event := &Event{
			ID: id, Timestamp: ts, Type: typ,
			Severity: SeverityInfo, Outcome: OutcomeSuccess,
			Actor: Actor{ID: actor, Type: "verifier"},
		}
		if target != "" {
			event.Target = &Target{ID: target, Type: "report"}
		}
		if err := store.Save(ctx, event); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	save("a", EventTypeReportVerified, "mod-1", "key_a", base)
	save("b", EventTypeReportDenied, "mod-2", "key_a", base.Add(time.Minute))
	save("c", EventTypeReportVerified, "mod-1", "key_b", base.Add(2*time.Minute))

	byActor, err := store.Query(ctx, QueryFilter{ActorID: "mod-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("actor filter events = %d, want 2", len(byActor))
	}

	byTarget, _ := store.Query(ctx, QueryFilter{TargetID: "key_a"})
	if len(byTarget) != 2 {
		t.Errorf("target filter events = %d, want 2", len(byTarget))
	}

	startAt := base.Add(30 * time.Second)
	byTime, _ := store.Query(ctx, QueryFilter{StartTime: &startAt})
	if len(byTime) != 2 {
		t.Errorf("time filter events = %d, want 2", len(byTime))
	}

	limited, _ := store.Query(ctx, QueryFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("limited query = %+v, want just the newest event", limited)
	}
}

func TestMemoryStoreRetentionDelete(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(100)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.Save(ctx, &Event{
			ID: string(rune('a' + i)), Timestamp: base.AddDate(0, 0, i),
			Type: EventTypeReportSubmitted, Severity: SeverityInfo, Outcome: OutcomeSuccess,
		}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	removed, err := store.Delete(ctx, base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Delete() removed = %d, want 3", removed)
	}

	n, _ := store.Count(ctx, QueryFilter{})
	if n != 2 {
		t.Errorf("Count() = %d after retention delete, want 2", n)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	t.Parallel()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewBadgerStore(db)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		err := store.Save(ctx, &Event{
			ID:        string(rune('w' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      EventTypeReportVerified,
			Severity:  SeverityInfo,
			Outcome:   OutcomeSuccess,
			Actor:     VerifierActor("mod-1", nil),
			Target:    &Target{ID: "some_key", Type: "report"},
		})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	events, err := store.Query(ctx, QueryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Query() events = %d, want 2", len(events))
	}
	if events[0].Timestamp.Before(events[1].Timestamp) {
		t.Error("Query() not most-recent-first")
	}

	n, err := store.Count(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() = %d, want 4", n)
	}

	removed, err := store.Delete(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Delete() removed = %d, want 2", removed)
	}

	n, _ = store.Count(ctx, QueryFilter{})
	if n != 2 {
		t.Errorf("Count() = %d after delete, want 2", n)
	}
}
