// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package models

import "errors"

// Error taxonomy. Handlers translate these with errors.Is into stable API
// error codes; anything not matching a sentinel surfaces as INTERNAL_ERROR
// with a generic message and full server-side logging.
var (
	// ErrValidation covers bad or missing fields, including a malformed or
	// non-today submission date. Wrapped detail is surfaced verbatim.
	ErrValidation = errors.New("validation failed")

	// ErrModerationRejected means the content classifier flagged the text.
	// The classifier output is audit-logged, never surfaced.
	ErrModerationRejected = errors.New("content rejected by moderation")

	// ErrNotFound covers an unresolvable address and a missing pending
	// report on verify/deny/delete.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded means the per-client daily submission quota is spent.
	ErrQuotaExceeded = errors.New("daily submission quota exceeded")

	// ErrUnauthorized means a missing or insufficient verifier capability.
	// Surfaced without revealing whether the target report exists.
	ErrUnauthorized = errors.New("unauthorized")
)
