// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package validation provides struct validation (go-playground/validator
// v10), input sanitization, and the strict submission-timestamp rules.
//
// Sanitization runs before any stored or externally forwarded use of user
// text: HTML tags stripped with content preserved, the characters <>"'
// removed, trimmed, capped at 500 characters. The strict date rules accept
// only ISO-8601 with millisecond precision and a Z suffix, and ingestion
// additionally requires the timestamp to fall on the current UTC day.
package validation
