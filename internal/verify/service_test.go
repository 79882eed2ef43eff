// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/testinfra"
)

var (
	decisionTime = time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	testVerifier = audit.VerifierActor("mod-1", []string{"verifier"})
)

type verifyFixture struct {
	svc      *Service
	pending  *testinfra.MemReportStore
	verified *testinfra.MemReportStore
	blobs    *testinfra.MemBlobStore
	events   *audit.MemoryStore
	auditLog *audit.Logger
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()
	f := &verifyFixture{
		pending:  testinfra.NewMemReportStore(),
		verified: testinfra.NewMemReportStore(),
		blobs:    testinfra.NewMemBlobStore(),
		events:   audit.NewMemoryStore(100),
	}
	f.auditLog = audit.NewLogger(f.events, nil)
	t.Cleanup(func() { _ = f.auditLog.Close() })

	f.svc = NewService(f.pending, f.verified, f.blobs, f.auditLog)
	f.svc.now = func() time.Time { return decisionTime }
	return f
}

func pendingReport(imagePath string) *models.Report {
	return &models.Report{
		AddedAt:        decisionTime.Add(-time.Hour),
		Address:        "9 Elm St, Springfield, IL 62701, USA",
		AdditionalInfo: "repeated dumping",
		Lat:            39.78,
		Lng:            -89.65,
		ReportedCount:  2,
		ImagePath:      imagePath,
	}
}

func TestVerifyFirstApproval(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.blobs.Stage("staging/abc.jpg", "img-bytes")
	f.pending.Seed("9_elm_st", pendingReport("staging/abc.jpg"))

	if err := f.svc.Verify(ctx, testVerifier, "9_elm_st"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	rec, err := f.verified.Get(ctx, "9_elm_st")
	if err != nil {
		t.Fatalf("verified entry missing: %v", err)
	}
	if rec.VerifiedAt != decisionTime {
		t.Errorf("VerifiedAt = %v, want %v", rec.VerifiedAt, decisionTime)
	}
	if rec.ImageURL != "https://img.test/9_elm_st" {
		t.Errorf("ImageURL = %q", rec.ImageURL)
	}
	if rec.ReportedCount != 2 {
		t.Errorf("ReportedCount = %d, want 2", rec.ReportedCount)
	}

	if _, err := f.pending.Get(ctx, "9_elm_st"); !errors.Is(err, models.ErrNotFound) {
		t.Error("pending entry still present after verification")
	}
	if _, ok := f.blobs.Staged["staging/abc.jpg"]; ok {
		t.Error("staged image still present after promotion")
	}
	if _, ok := f.blobs.Public["public/9_elm_st"]; !ok {
		t.Error("public image missing after promotion")
	}
}

func TestVerifyWithoutImage(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.pending.Seed("9_elm_st", pendingReport(""))

	if err := f.svc.Verify(ctx, testVerifier, "9_elm_st"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	rec, err := f.verified.Get(ctx, "9_elm_st")
	if err != nil {
		t.Fatalf("verified entry missing: %v", err)
	}
	if rec.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty for an imageless report", rec.ImageURL)
	}
}

func TestVerifyDuplicateApprovalMerges(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	existing := pendingReport("")
	existing.ReportedCount = 3
	existing.VerifiedAt = decisionTime.Add(-24 * time.Hour)
	existing.ImageURL = "https://img.test/9_elm_st"
	existing.ImagePath = "public/9_elm_st"
	f.verified.Seed("9_elm_st", existing)

	f.blobs.Stage("staging/dup.jpg", "dup-bytes")
	dup := pendingReport("staging/dup.jpg")
	dup.AddedAt = decisionTime.Add(-time.Minute)
	f.pending.Seed("9_elm_st", dup)

	if err := f.svc.Verify(ctx, testVerifier, "9_elm_st"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	rec, err := f.verified.Get(ctx, "9_elm_st")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.ReportedCount != 5 {
		t.Errorf("ReportedCount = %d, want 5", rec.ReportedCount)
	}
	if !rec.AddedAt.Equal(dup.AddedAt) {
		t.Errorf("AddedAt not refreshed: %v", rec.AddedAt)
	}
	if rec.ImageURL != "https://img.test/9_elm_st" {
		t.Errorf("existing image URL lost: %q", rec.ImageURL)
	}
	if rec.VerifiedAt != existing.VerifiedAt {
		t.Errorf("VerifiedAt changed on merge: %v", rec.VerifiedAt)
	}

	// The pending image is surplus: discarded, never promoted.
	if _, ok := f.blobs.Staged["staging/dup.jpg"]; ok {
		t.Error("pending image not discarded on duplicate approval")
	}
	if f.verified.Len() != 1 {
		t.Errorf("verified entries = %d, want 1", f.verified.Len())
	}
	if _, err := f.pending.Get(ctx, "9_elm_st"); !errors.Is(err, models.ErrNotFound) {
		t.Error("pending entry still present after merge approval")
	}
}

func TestVerifyMissingPendingIsNotFound(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)

	err := f.svc.Verify(context.Background(), testVerifier, "nope")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Verify() error = %v, want ErrNotFound", err)
	}
}

func TestVerifyStoreFailureKeepsPendingEntry(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.blobs.Stage("staging/abc.jpg", "img-bytes")
	f.pending.Seed("9_elm_st", pendingReport("staging/abc.jpg"))
	f.verified.FailPut = errors.New("disk full")

	if err := f.svc.Verify(ctx, testVerifier, "9_elm_st"); err == nil {
		t.Fatal("Verify() error = nil, want store error")
	}

	// The pending record must survive so the decision can be retried,
	// and the half-promoted public copy is cleaned up.
	if _, err := f.pending.Get(ctx, "9_elm_st"); err != nil {
		t.Errorf("pending entry lost after store failure: %v", err)
	}
	if _, ok := f.blobs.Public["public/9_elm_st"]; ok {
		t.Error("orphaned public image left after store failure")
	}
}

func TestDenyQuarantinesImage(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.blobs.Stage("staging/abc.jpg", "img-bytes")
	f.pending.Seed("9_elm_st", pendingReport("staging/abc.jpg"))

	if err := f.svc.Deny(ctx, testVerifier, "9_elm_st"); err != nil {
		t.Fatalf("Deny() error = %v", err)
	}

	if _, err := f.pending.Get(ctx, "9_elm_st"); !errors.Is(err, models.ErrNotFound) {
		t.Error("pending entry still present after denial")
	}
	if _, ok := f.blobs.Denied["denied/9_elm_st"]; !ok {
		t.Error("image not quarantined")
	}
	if len(f.blobs.Public) != 0 {
		t.Error("denied image leaked into public storage")
	}

	// The final object name is recorded for audit, nowhere else.
	_ = f.auditLog.Close()
	events, err := f.events.Query(ctx, audit.QueryFilter{
		Types: []audit.EventType{audit.EventTypeReportDenied},
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("denied audit events = %d, want 1", len(events))
	}
	var meta map[string]string
	if err := json.Unmarshal(events[0].Metadata, &meta); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if meta["image_path"] != "denied/9_elm_st" {
		t.Errorf("audited image path = %q", meta["image_path"])
	}
}

func TestDenyQuarantineFailureLeavesPendingIntact(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.blobs.Stage("staging/abc.jpg", "img-bytes")
	f.pending.Seed("9_elm_st", pendingReport("staging/abc.jpg"))
	f.blobs.FailPromote = errors.New("backend unavailable")

	if err := f.svc.Deny(ctx, testVerifier, "9_elm_st"); err == nil {
		t.Fatal("Deny() error = nil, want quarantine error")
	}
	if _, err := f.pending.Get(ctx, "9_elm_st"); err != nil {
		t.Errorf("pending entry lost after failed quarantine: %v", err)
	}
	if _, ok := f.blobs.Staged["staging/abc.jpg"]; !ok {
		t.Error("staged image lost after failed quarantine")
	}
}

func TestDenyMissingPendingIsNotFound(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)

	err := f.svc.Deny(context.Background(), testVerifier, "nope")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Deny() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteDiscardsReportAndImage(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)
	ctx := context.Background()

	f.blobs.Stage("staging/abc.jpg", "img-bytes")
	f.pending.Seed("9_elm_st", pendingReport("staging/abc.jpg"))

	if err := f.svc.Delete(ctx, testVerifier, "9_elm_st"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.pending.Get(ctx, "9_elm_st"); !errors.Is(err, models.ErrNotFound) {
		t.Error("pending entry still present after delete")
	}
	if len(f.blobs.Staged)+len(f.blobs.Public)+len(f.blobs.Denied) != 0 {
		t.Error("image retained somewhere after delete")
	}
}

func TestDeleteMissingPendingIsNotFound(t *testing.T) {
	t.Parallel()
	f := newVerifyFixture(t)

	err := f.svc.Delete(context.Background(), testVerifier, "nope")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
