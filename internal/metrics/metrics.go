// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	// SubmissionsTotal counts submissions by terminal outcome: created,
	// merged, invalid, no_identity, quota, flagged, moderation_error,
	// unresolvable, store_error.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetwatch_submissions_total",
			Help: "Total report submissions by outcome",
		},
		[]string{"outcome"},
	)

	// RateLimitRejections counts quota rejections by bucket.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetwatch_rate_limit_rejections_total",
			Help: "Total submissions rejected by the daily quota",
		},
		[]string{"bucket"},
	)

	// Provider metrics

	// ProviderCallDuration observes moderation/geocoding call latency.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streetwatch_provider_call_duration_seconds",
			Help:    "Duration of external provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "outcome"}, // provider: moderation, geocode
	)

	// ProviderBreakerState tracks circuit breaker state per provider
	// (0 closed, 1 half-open, 2 open).
	ProviderBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streetwatch_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	// Store metrics

	// StoreOperationDuration observes live/archive store operation latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streetwatch_store_operation_duration_seconds",
			Help:    "Duration of report store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"}, // store: live, archive
	)

	// StoreOperationErrors counts store operation failures.
	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetwatch_store_operation_errors_total",
			Help: "Total report store operation errors",
		},
		[]string{"store", "operation"},
	)

	// Verification metrics

	// VerificationsTotal counts verifier decisions: verified,
	// verified_merge, denied, discarded.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetwatch_verifications_total",
			Help: "Total verifier decisions by kind",
		},
		[]string{"decision"},
	)

	// Migration metrics

	// MigrationEntriesTotal counts archival migration entry outcomes:
	// moved, merged, failed.
	MigrationEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streetwatch_migration_entries_total",
			Help: "Total archival migration entry outcomes",
		},
		[]string{"outcome"},
	)

	// MigrationRunDuration observes full archival migration runs.
	MigrationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streetwatch_migration_run_duration_seconds",
			Help:    "Duration of archival migration runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// API metrics

	// HTTPRequestDuration observes HTTP request latency by route and code.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streetwatch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

// ObserveProviderCall records one provider call.
func ObserveProviderCall(provider, outcome string, start time.Time) {
	ProviderCallDuration.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())
}

// ObserveStoreOperation records one store operation and its error state.
func ObserveStoreOperation(store, operation string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(store, operation).Inc()
	}
}
