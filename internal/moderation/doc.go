// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package moderation wraps the external content classifier.
//
// The provider is opaque: one POST, one boolean verdict. The interesting
// policy lives here instead - oversized text is flagged without a call,
// a circuit breaker sheds calls while the provider is down, and the
// FailOpen setting decides whether an unreachable provider means "not
// flagged" (availability) or an error (abuse prevention).
package moderation
