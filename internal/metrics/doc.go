// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package metrics defines the Prometheus instrumentation for Streetwatch:
// ingestion outcomes, provider call latency and breaker state, store
// operation latency, verifier decisions, and archival migration counters.
// Metrics are registered via promauto and exposed at /metrics.
package metrics
