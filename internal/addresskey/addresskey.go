// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package addresskey derives the deterministic storage key for a formatted
// address. Two addresses that differ only in case, spacing, punctuation, or
// hyphenation normalize to the same key, which is what makes duplicate
// submissions for the same location merge instead of multiplying.
//
// Keys are always derived from the geocoder's formatted address, never from
// raw user input: differently-typed inputs for the same place geocode to the
// same formatted string and therefore the same key.
package addresskey

import (
	"regexp"
	"strings"
)

// MaxKeyLength caps the derived key so it stays a safe store identifier.
const MaxKeyLength = 200

var (
	// nonWordRe strips everything except word characters, whitespace, and
	// hyphens. \w is ASCII here; non-ASCII characters are dropped rather
	// than transliterated, keeping the function locale-insensitive.
	nonWordRe = regexp.MustCompile(`[^\w\s-]+`)

	// separatorRe collapses runs of whitespace, hyphens, and underscores
	// into a single separator.
	separatorRe = regexp.MustCompile(`[\s_-]+`)
)

// MakeKey canonicalizes a formatted address into a storage-safe identifier.
// It is a total function: it never errors and returns "" for input that
// normalizes to nothing. Callers must treat an empty key as "cannot be
// stored" and reject the record.
func MakeKey(address string) string {
	s := strings.ToLower(strings.TrimSpace(address))
	if s == "" {
		return ""
	}

	s = nonWordRe.ReplaceAllString(s, "")
	s = separatorRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")

	// The normalized string is pure ASCII, so byte truncation is safe.
	if len(s) > MaxKeyLength {
		s = s[:MaxKeyLength]
		s = strings.TrimRight(s, "_")
	}

	return s
}
