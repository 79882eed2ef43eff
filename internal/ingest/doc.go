// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package ingest implements the submission pipeline that turns a raw
// form post into a pending report.
//
// The pipeline is a fixed sequence of gates: validate, sanitize, quota,
// moderation, geocoding, key derivation, merge-upsert. Order matters
// twice over: the quota check runs before either paid provider so an
// abusive client cannot amplify billing, and moderation runs before
// geocoding so flagged text never reaches the geocoder. Every rejection
// happens before the first store write, which is what guarantees a
// failed submission leaves nothing behind.
package ingest
