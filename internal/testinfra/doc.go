// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package testinfra provides in-memory fakes for the storage, provider,
// and blob interfaces so service-level tests exercise pipeline logic
// without BadgerDB, DuckDB, or HTTP servers. The fakes keep the same
// merge and counter semantics as the real implementations.
package testinfra
