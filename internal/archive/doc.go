// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package archive implements the cold tier of report storage on DuckDB.
//
// Verified reports older than the retention window are migrated here by
// the nightly job and never served on the live map. The store satisfies
// the same reports.Store contract as a live bucket, plus SQL-native
// range operations (DeleteAddedSince, CountAddedSince) that the
// maintenance endpoints use. Writes are chunked to the configured batch
// size; merge keeps the same duplicate semantics as the live tier so an
// entry migrated twice folds instead of duplicating.
package archive
