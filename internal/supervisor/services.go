// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
)

// HTTPServer matches the *http.Server lifecycle methods the wrapper
// needs, so tests can substitute a fake.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server's blocking ListenAndServe to
// suture's context-aware Serve: the server runs in a goroutine, and
// context cancellation triggers a graceful Shutdown bounded by the
// shutdown timeout.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the expected
// result of Shutdown and is not treated as a failure.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled; the shutdown gets
		// its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// MigrationRunner matches the archival migrator's Run method.
type MigrationRunner interface {
	Run(ctx context.Context) (models.MigrationResult, error)
}

// MigrationService runs the archival migration once a day at a fixed
// UTC hour. A failed run is logged and retried at the next scheduled
// time; the supervisor only restarts the service when the scheduling
// loop itself fails.
type MigrationService struct {
	migrator MigrationRunner
	hour     int
	now      func() time.Time
}

// NewMigrationService schedules migrator daily at the given UTC hour.
func NewMigrationService(migrator MigrationRunner, hour int) *MigrationService {
	if hour < 0 || hour > 23 {
		hour = 3
	}
	return &MigrationService{
		migrator: migrator,
		hour:     hour,
		now:      time.Now,
	}
}

// nextRunAt returns the next occurrence of the scheduled hour, strictly
// after now.
func (s *MigrationService) nextRunAt(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Serve implements suture.Service.
func (s *MigrationService) Serve(ctx context.Context) error {
	for {
		next := s.nextRunAt(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		result, err := s.migrator.Run(ctx)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Scheduled migration failed")
			continue
		}
		logging.Ctx(ctx).Info().
			Int("attempted", result.Attempted).
			Int("moved", result.Moved).
			Int("failed", result.Failed).
			Int64("archived_count", result.ArchivedCount).
			Msg("Scheduled migration completed")
	}
}

func (s *MigrationService) String() string { return "archival-migration" }

// EventPruner matches the audit store's retention primitive.
type EventPruner interface {
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditRetentionService prunes audit events past their retention window
// once per sweep interval.
type AuditRetentionService struct {
	store     EventPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewAuditRetentionService sweeps store hourly, deleting events older
// than retentionDays.
func NewAuditRetentionService(store EventPruner, retentionDays int) *AuditRetentionService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &AuditRetentionService{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  time.Hour,
		now:       time.Now,
	}
}

// Serve implements suture.Service.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cutoff := s.now().UTC().Add(-s.retention)
		deleted, err := s.store.Delete(ctx, cutoff)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Audit retention sweep failed")
			continue
		}
		if deleted > 0 {
			logging.Ctx(ctx).Info().
				Int64("deleted", deleted).
				Time("cutoff", cutoff).
				Msg("Audit retention sweep completed")
		}
	}
}

func (s *AuditRetentionService) String() string { return "audit-retention" }
