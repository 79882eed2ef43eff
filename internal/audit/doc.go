// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package audit records the moderation trail: what was submitted, what
// the classifier flagged, and which verifier approved, denied, or
// deleted each report.
//
// The trail exists because two kinds of information must be durable but
// never user-visible. Classifier verdicts are logged here and replaced
// with a generic message toward the submitter, and moderation decisions
// need attribution for accountability. Events are written asynchronously
// through a bounded buffer; persistence is either in-memory or the
// shared BadgerDB, selected by configuration. A retention sweep removes
// events past the configured age.
package audit
