// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package validation

import (
	"fmt"
	"time"
)

// StrictDateLayout is the only accepted submission timestamp format:
// ISO-8601 with millisecond precision and an explicit Z suffix.
const StrictDateLayout = "2006-01-02T15:04:05.000Z"

// ParseStrictDate parses a submission timestamp. The layout is exact: any
// missing milliseconds, offset notation, or trailing garbage is rejected.
func ParseStrictDate(s string) (time.Time, error) {
	t, err := time.Parse(StrictDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp must match %s: %w", StrictDateLayout, err)
	}
	return t.UTC(), nil
}

// SameUTCDay reports whether two instants fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// RequireToday parses a strict timestamp and verifies it falls on the
// current UTC calendar day relative to now. A mismatch is a validation
// error, not a moderation decision.
func RequireToday(s string, now time.Time) (time.Time, error) {
	t, err := ParseStrictDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if !SameUTCDay(t, now) {
		return time.Time{}, fmt.Errorf("timestamp %s is not on the current UTC day", s)
	}
	return t, nil
}
