// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package verify applies moderator decisions to pending reports: approve
// into the public verified tier, deny with image quarantine, or discard
// outright. Every decision requires the pending entry to exist; a missing
// entry is a not-found error, never a silent no-op.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/blob"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/reports"
)

// Service executes verifier decisions over the pending and verified
// tiers. Image relocation is copy-verify-delete: if the blob step fails,
// the pending record and its staged image stay untouched so the decision
// can be retried.
type Service struct {
	pending  reports.Store
	verified reports.Store
	blobs    blob.Store
	audit    *audit.Logger

	now func() time.Time
}

// NewService wires the decision paths.
func NewService(pending, verified reports.Store, blobs blob.Store, auditLog *audit.Logger) *Service {
	return &Service{
		pending:  pending,
		verified: verified,
		blobs:    blobs,
		audit:    auditLog,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Verify approves the pending report under key. A first approval
// relocates the image into public storage, mints its URL, and writes the
// verified record; a duplicate approval, where a verified entry already
// exists for the key, merges the count into it and discards the pending
// image, since the verified copy's image is untouched. The pending entry
// is removed only after the verified tier holds the result.
func (s *Service) Verify(ctx context.Context, actor audit.Actor, key string) error {
	p, err := s.pending.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load pending report: %w", err)
	}

	existing, err := s.verified.Get(ctx, key)
	switch {
	case err == nil:
		return s.mergeApproval(ctx, actor, key, p, existing)
	case errors.Is(err, models.ErrNotFound):
		return s.firstApproval(ctx, actor, key, p)
	default:
		return fmt.Errorf("load verified report: %w", err)
	}
}

func (s *Service) firstApproval(ctx context.Context, actor audit.Actor, key string, p *models.Report) error {
	rec := *p
	rec.ReportedCount = p.Count()
	rec.VerifiedAt = s.now()

	if p.ImagePath != "" {
		storedPath, publicURL, err := s.blobs.Promote(ctx, p.ImagePath, key)
		if err != nil && !errors.Is(err, blob.ErrNoImage) {
			s.audit.LogVerificationDecision(ctx, actor, key, "verify", audit.OutcomeFailure, nil)
			return fmt.Errorf("promote image: %w", err)
		}
		rec.ImagePath = storedPath
		rec.ImageURL = publicURL
	}

	if err := s.verified.Put(ctx, key, &rec); err != nil {
		// The image has already moved; remove the public copy so a
		// retried verify starts clean. The pending entry must survive
		// for that retry, so it is never deleted here.
		if rec.ImagePath != "" {
			if cerr := s.blobs.Remove(ctx, rec.ImagePath); cerr != nil {
				logging.Ctx(ctx).Error().Err(cerr).Str("path", rec.ImagePath).Msg("Failed to clean up promoted image after store error")
			}
		}
		s.audit.LogVerificationDecision(ctx, actor, key, "verify", audit.OutcomeFailure, nil)
		return fmt.Errorf("write verified report: %w", err)
	}

	if err := s.pending.Delete(ctx, key); err != nil {
		// The verified record exists; a stale pending entry is
		// re-approvable and merges harmlessly, so log and carry on.
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to remove pending entry after verification")
	}

	metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	s.audit.LogVerificationDecision(ctx, actor, key, "verify", audit.OutcomeSuccess, nil)
	logging.Ctx(ctx).Info().Str("key", key).Msg("Report verified")
	return nil
}

func (s *Service) mergeApproval(ctx context.Context, actor audit.Actor, key string, p, existing *models.Report) error {
	merged := *existing
	merged.ReportedCount = existing.Count() + p.Count()
	merged.AddedAt = p.AddedAt

	if err := s.verified.Put(ctx, key, &merged); err != nil {
		s.audit.LogVerificationDecision(ctx, actor, key, "verify", audit.OutcomeFailure, nil)
		return fmt.Errorf("merge into verified report: %w", err)
	}

	// The verified copy's image is authoritative; the pending one is
	// surplus and already merged away.
	if p.ImagePath != "" {
		if err := s.blobs.Discard(ctx, p.ImagePath); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("path", p.ImagePath).Msg("Failed to discard pending image after merge approval")
		}
	}
	if err := s.pending.Delete(ctx, key); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to remove pending entry after merge approval")
	}

	metrics.VerificationsTotal.WithLabelValues("verified_merge").Inc()
	s.audit.LogVerificationDecision(ctx, actor, key, "verify", audit.OutcomeSuccess, nil)
	logging.Ctx(ctx).Info().Str("key", key).Int64("count", merged.ReportedCount).Msg("Duplicate approval merged into verified report")
	return nil
}

// Deny rejects the pending report under key. Its image moves to the
// non-public denied area; no URL is ever minted. The quarantined object's
// final name lands in the audit record, not in any API response.
func (s *Service) Deny(ctx context.Context, actor audit.Actor, key string) error {
	p, err := s.pending.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load pending report: %w", err)
	}

	var finalPath string
	if p.ImagePath != "" {
		finalPath, err = s.blobs.Quarantine(ctx, p.ImagePath, key)
		if err != nil && !errors.Is(err, blob.ErrNoImage) {
			s.audit.LogVerificationDecision(ctx, actor, key, "deny", audit.OutcomeFailure, nil)
			return fmt.Errorf("quarantine image: %w", err)
		}
	}

	if err := s.pending.Delete(ctx, key); err != nil {
		s.audit.LogVerificationDecision(ctx, actor, key, "deny", audit.OutcomeFailure, nil)
		return fmt.Errorf("remove denied report: %w", err)
	}

	metrics.VerificationsTotal.WithLabelValues("denied").Inc()
	s.audit.LogVerificationDecision(ctx, actor, key, "deny", audit.OutcomeSuccess, map[string]string{"image_path": finalPath})
	logging.Ctx(ctx).Info().Str("key", key).Msg("Report denied")
	return nil
}

// Delete discards the pending report under key together with its staged
// image. Nothing is retained.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, key string) error {
	p, err := s.pending.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load pending report: %w", err)
	}

	if p.ImagePath != "" {
		if err := s.blobs.Discard(ctx, p.ImagePath); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("path", p.ImagePath).Msg("Failed to discard image of deleted report")
		}
	}

	if err := s.pending.Delete(ctx, key); err != nil {
		s.audit.LogVerificationDecision(ctx, actor, key, "delete", audit.OutcomeFailure, nil)
		return fmt.Errorf("remove pending report: %w", err)
	}

	metrics.VerificationsTotal.WithLabelValues("discarded").Inc()
	s.audit.LogVerificationDecision(ctx, actor, key, "delete", audit.OutcomeSuccess, nil)
	logging.Ctx(ctx).Info().Str("key", key).Msg("Pending report discarded")
	return nil
}
