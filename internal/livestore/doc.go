// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package livestore implements the hot tier of report storage on BadgerDB.
//
// One embedded database holds three kinds of records under distinct key
// prefixes: pending reports awaiting review, verified reports served to
// the public map, and the singleton stats snapshot. Rate-limit counters
// and the persistent audit log borrow the same database handle via
// Badger(). All mutations that read before writing (duplicate merge,
// stats increments) run inside a single BadgerDB transaction, which is
// what makes concurrent submissions safe without any locking in the
// callers.
package livestore
