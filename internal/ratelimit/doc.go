// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package ratelimit enforces the per-client daily submission quota.
//
// This is the application-level quota tied to a salted client hash and
// the UTC calendar day; the cheap per-IP edge throttle lives in the HTTP
// middleware stack instead. Counters are stored with a TTL in the same
// BadgerDB as the live reports, and the check-and-increment runs in one
// transaction so the limit holds under concurrency.
package ratelimit
