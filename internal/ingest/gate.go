// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/streetwatch/streetwatch/internal/addresskey"
	"github.com/streetwatch/streetwatch/internal/audit"
	"github.com/streetwatch/streetwatch/internal/blob"
	"github.com/streetwatch/streetwatch/internal/geocode"
	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/metrics"
	"github.com/streetwatch/streetwatch/internal/models"
	"github.com/streetwatch/streetwatch/internal/moderation"
	"github.com/streetwatch/streetwatch/internal/reports"
	"github.com/streetwatch/streetwatch/internal/validation"
)

// submitBucket is the rate-limit bucket for public submissions.
const submitBucket = "submit"

// Submission is one raw submission from the public form.
type Submission struct {
	AddedAt        string `json:"added_at" validate:"required,strictdate"`
	Address        string `json:"address" validate:"required"`
	AdditionalInfo string `json:"additional_info" validate:"required"`
	ImagePath      string `json:"image_path,omitempty"`
}

// StatsRecorder is the slice of the live store the gate needs for the
// new-key side effect.
type StatsRecorder interface {
	IncrementStats(ctx context.Context, addedAt, now time.Time) error
}

// QuotaLimiter is the slice of the rate limiter the gate consumes.
type QuotaLimiter interface {
	Allow(ctx context.Context, bucket, clientAddr string, now time.Time) (int, error)
	Hash(clientAddr string) (string, error)
}

// Gate is the ingestion pipeline. Each stage can short-circuit with a
// distinct error from the models taxonomy; no store write happens until
// every gate has passed, so a rejected submission leaves no partial
// state.
type Gate struct {
	limiter   QuotaLimiter
	moderator moderation.Moderator
	geocoder  geocode.Geocoder
	pending   reports.Store
	stats     StatsRecorder
	audit     *audit.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewGate wires the pipeline.
func NewGate(limiter QuotaLimiter, moderator moderation.Moderator, geocoder geocode.Geocoder, pending reports.Store, stats StatsRecorder, auditLog *audit.Logger) *Gate {
	return &Gate{
		limiter:   limiter,
		moderator: moderator,
		geocoder:  geocoder,
		pending:   pending,
		stats:     stats,
		audit:     auditLog,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit runs the pipeline for one submission. Stage order is part of
// the contract: the quota check runs before any paid provider call, and
// moderation runs before geocoding so flagged content never reaches the
// geocoder.
func (g *Gate) Submit(ctx context.Context, sub Submission, clientAddr string) (*models.SubmitResponse, error) {
	now := g.now()

	// 1. Field presence and format.
	if verr := validation.ValidateStruct(&sub); verr != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, verr.Error())
	}
	addedAt, err := validation.RequireToday(sub.AddedAt, now)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}
	// The image path must be one the upload endpoint handed out; the
	// moderation flow later joins it onto the blob root.
	if sub.ImagePath != "" {
		if err := blob.CheckStagedPath(sub.ImagePath); err != nil {
			metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
			return nil, fmt.Errorf("%w: image_path is not a staged image", models.ErrValidation)
		}
	}

	// 2. Sanitization.
	address := validation.Sanitize(sub.Address)
	info := validation.Sanitize(sub.AdditionalInfo)
	if address == "" || info == "" {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: address and additional info must not be empty after sanitization", models.ErrValidation)
	}

	// 3. Quota, before any paid call.
	clientHash, err := g.limiter.Hash(clientAddr)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("no_identity").Inc()
		return nil, fmt.Errorf("%w: client identity required", models.ErrValidation)
	}
	if _, err := g.limiter.Allow(ctx, submitBucket, clientAddr, now); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("quota").Inc()
		g.audit.LogQuotaExceeded(ctx, audit.SubmitterActor(clientHash))
		return nil, err
	}

	// 4. Content moderation.
	flagged, err := g.moderator.IsFlagged(ctx, info)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("moderation_error").Inc()
		return nil, fmt.Errorf("moderation: %w", err)
	}
	if flagged {
		metrics.SubmissionsTotal.WithLabelValues("flagged").Inc()
		g.audit.LogSubmissionFlagged(ctx, audit.SubmitterActor(clientHash), address, "provider")
		return nil, models.ErrModerationRejected
	}

	// 5. Geocoding. Failure or an imprecise match is not-found, never a
	// pin with null coordinates.
	loc, err := g.geocoder.Resolve(ctx, address)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("unresolvable").Inc()
		return nil, fmt.Errorf("%w: address could not be resolved to a precise location", models.ErrNotFound)
	}

	// 6. Key from the formatted address, never the raw input.
	key := addresskey.MakeKey(loc.FormattedAddress)
	if key == "" {
		metrics.SubmissionsTotal.WithLabelValues("unresolvable").Inc()
		return nil, fmt.Errorf("%w: resolved address yields no stable key", models.ErrNotFound)
	}

	// 7. Upsert with duplicate merge.
	report := &models.Report{
		AddedAt:        addedAt,
		Address:        loc.FormattedAddress,
		AdditionalInfo: info,
		Lat:            loc.Lat,
		Lng:            loc.Lng,
		ReportedCount:  1,
		ImagePath:      sub.ImagePath,
	}
	created, err := g.pending.Merge(ctx, key, report)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("store pending report: %w", err)
	}

	// 8. Stats move only on a genuinely new key.
	if created {
		if err := g.stats.IncrementStats(ctx, addedAt, now); err != nil {
			// The report is in; a missed counter is repairable by the
			// recompute path.
			logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to increment stats for new report")
		}
	}

	outcome := "created"
	if !created {
		outcome = "merged"
	}
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	g.audit.LogReportSubmitted(ctx, audit.SubmitterActor(clientHash), key, !created)
	logging.Ctx(ctx).Info().
		Str("key", key).
		Bool("created", created).
		Msg("Submission accepted")

	return &models.SubmitResponse{
		Message:          "Report submitted for review",
		FormattedAddress: loc.FormattedAddress,
	}, nil
}
