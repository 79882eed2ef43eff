// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/streetwatch/streetwatch/internal/logging"
	"github.com/streetwatch/streetwatch/internal/models"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// Logger records audit events asynchronously: the request path enqueues
// and moves on, a background writer persists. A full buffer drops the
// event with a warning rather than blocking a submission on audit I/O.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger over the given store.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log records an audit event.
func (l *Logger) Log(event *Event) {
	if !l.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// Close shuts down the logger gracefully, draining buffered events.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

// RunRetentionSweep drops events older than the retention window. The
// supervisor invokes this on a schedule.
func (l *Logger) RunRetentionSweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.config.RetentionDays)
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		return err
	}
	if count > 0 {
		logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
	}
	return nil
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// SystemActor is the actor for scheduled jobs and internal maintenance.
func SystemActor() Actor {
	return Actor{ID: "system", Type: "system"}
}

// VerifierActor builds an actor from an authenticated verifier token.
func VerifierActor(subject string, roles []string) Actor {
	return Actor{ID: subject, Type: "verifier", Roles: roles}
}

// SubmitterActor builds an actor from a hashed client identity. The raw
// client address never enters the audit log.
func SubmitterActor(clientHash string) Actor {
	return Actor{ID: clientHash, Type: "submitter"}
}

// Helper methods for the report lifecycle

// LogSubmissionFlagged records a moderation rejection. The classifier
// label stays in the audit trail only; the submitter sees a generic
// message.
func (l *Logger) LogSubmissionFlagged(ctx context.Context, actor Actor, address, label string) {
	l.Log(&Event{
		Type:        EventTypeReportFlagged,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Target:      &Target{ID: address, Type: "submission"},
		Action:      "moderate",
		Description: "Submission rejected by content moderation",
		Metadata:    mustJSON(map[string]string{"label": label}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogReportSubmitted records an accepted submission.
func (l *Logger) LogReportSubmitted(ctx context.Context, actor Actor, key string, merged bool) {
	l.Log(&Event{
		Type:        EventTypeReportSubmitted,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Target:      &Target{ID: key, Type: "report"},
		Action:      "submit",
		Description: "Report accepted as pending",
		Metadata:    mustJSON(map[string]bool{"merged_duplicate": merged}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogQuotaExceeded records a submission rejected by the daily quota.
func (l *Logger) LogQuotaExceeded(ctx context.Context, actor Actor) {
	l.Log(&Event{
		Type:        EventTypeQuotaExceeded,
		Severity:    SeverityInfo,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Action:      "submit",
		Description: "Daily submission quota exceeded",
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogVerificationDecision records a verifier's verify/deny/delete action.
// metadata carries decision-specific detail, such as the final object
// name of a quarantined image; nil means no metadata.
func (l *Logger) LogVerificationDecision(ctx context.Context, actor Actor, key, decision string, outcome Outcome, metadata any) {
	eventType := EventTypeReportVerified
	switch decision {
	case "deny":
		eventType = EventTypeReportDenied
	case "delete":
		eventType = EventTypeReportDeleted
	}
	severity := SeverityInfo
	if outcome == OutcomeFailure {
		severity = SeverityError
	}
	event := &Event{
		Type:        eventType,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       actor,
		Target:      &Target{ID: key, Type: "report"},
		Action:      decision,
		Description: "Moderation decision applied",
		RequestID:   logging.RequestIDFromContext(ctx),
	}
	if metadata != nil {
		event.Metadata = mustJSON(metadata)
	}
	l.Log(event)
}

// LogAuthzDenied records a rejected authorization check without leaking
// whether the target exists.
func (l *Logger) LogAuthzDenied(ctx context.Context, actor Actor, resource, action string) {
	l.Log(&Event{
		Type:        EventTypeAuthzDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Action:      action,
		Description: "Authorization denied for " + resource,
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogMigrationRun records the outcome of an archival migration run.
func (l *Logger) LogMigrationRun(ctx context.Context, result models.MigrationResult, runErr error) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if runErr != nil || result.Failed > 0 {
		outcome = OutcomeFailure
		severity = SeverityError
	}
	l.Log(&Event{
		Type:        EventTypeMigrationRun,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       SystemActor(),
		Target:      &Target{ID: "archive", Type: "archive"},
		Action:      "migrate",
		Description: "Archival migration run completed",
		Metadata:    mustJSON(result),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogMaintenance records a consolidation, range-delete, or stats
// recompute run.
func (l *Logger) LogMaintenance(ctx context.Context, eventType EventType, actor Actor, description string, metadata any) {
	l.Log(&Event{
		Type:        eventType,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Action:      "maintain",
		Description: description,
		Metadata:    mustJSON(metadata),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
