// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength caps sanitized free-text fields.
const MaxFieldLength = 500

// tagRe matches HTML tags. Tag contents are removed, text between tags is
// preserved.
var tagRe = regexp.MustCompile(`<[^>]*>`)

// Sanitize normalizes untrusted free text: HTML tags are stripped (content
// preserved), the characters <>"' are removed, surrounding whitespace is
// trimmed, and the result is capped at MaxFieldLength. The ampersand is
// intentionally preserved so addresses like "5th & Main" survive.
func Sanitize(s string) string {
	s = tagRe.ReplaceAllString(s, "")

	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)

	if len(s) > MaxFieldLength {
		s = truncateUTF8(s, MaxFieldLength)
	}

	return s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
