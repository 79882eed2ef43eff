// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package validation

import (
	"strings"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "three people loitering", "three people loitering"},
		{"html stripped content kept", "<b>urgent</b> sighting", "urgent sighting"},
		{"script tag", "<script>alert(1)</script>hi", "alert(1)hi"},
		{"angle quotes removed", `say "hello" to 'them'`, "say hello to them"},
		{"angle pair consumed as tag", "a < b > c", "a  c"},
		{"unmatched bracket removed", "1 > 0 always", "1  0 always"},
		{"ampersand preserved", "5th & Main", "5th & Main"},
		{"trimmed", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_LengthCap(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxFieldLength+100)
	if got := Sanitize(long); len(got) != MaxFieldLength {
		t.Errorf("expected cap at %d bytes, got %d", MaxFieldLength, len(got))
	}

	// Multi-byte content must not be split mid-rune.
	multi := strings.Repeat("é", MaxFieldLength) // 2 bytes each
	got := Sanitize(multi)
	if len(got) > MaxFieldLength {
		t.Errorf("cap exceeded: %d", len(got))
	}
	if !strings.HasSuffix(got, "é") {
		t.Error("truncation split a multi-byte rune")
	}
}

func TestParseStrictDate(t *testing.T) {
	t.Parallel()

	valid := "2024-10-25T10:00:00.000Z"
	got, err := ParseStrictDate(valid)
	if err != nil {
		t.Fatalf("ParseStrictDate(%q) returned error: %v", valid, err)
	}
	if got.Location() != time.UTC {
		t.Error("expected UTC result")
	}

	invalid := []string{
		"",
		"2024-10-25",
		"2024-10-25T10:00:00Z",       // missing milliseconds
		"2024-10-25T10:00:00.000",    // missing Z
		"2024-10-25T10:00:00.000+02", // offset instead of Z
		"2024-10-25T10:00:00.000Zjunk",
		"not a date",
	}
	for _, s := range invalid {
		if _, err := ParseStrictDate(s); err == nil {
			t.Errorf("ParseStrictDate(%q) accepted invalid input", s)
		}
	}
}

func TestRequireToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 10, 25, 23, 30, 0, 0, time.UTC)

	if _, err := RequireToday("2024-10-25T10:00:00.000Z", now); err != nil {
		t.Errorf("same-day timestamp rejected: %v", err)
	}
	if _, err := RequireToday("2024-10-24T23:59:59.999Z", now); err == nil {
		t.Error("yesterday accepted")
	}
	if _, err := RequireToday("2024-10-26T00:00:00.000Z", now); err == nil {
		t.Error("tomorrow accepted")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	type submitRequest struct {
		AddedAt        string `validate:"required,strictdate"`
		Address        string `validate:"required,max=500"`
		AdditionalInfo string `validate:"required,max=500"`
	}

	ok := submitRequest{
		AddedAt:        "2024-10-25T10:00:00.000Z",
		Address:        "123 Main St",
		AdditionalInfo: "info",
	}
	if err := ValidateStruct(&ok); err != nil {
		t.Errorf("valid struct rejected: %v", err)
	}

	bad := submitRequest{AddedAt: "2024-10-25", Address: "", AdditionalInfo: "x"}
	err := ValidateStruct(&bad)
	if err == nil {
		t.Fatal("invalid struct accepted")
	}
	if len(err.Errors()) != 2 {
		t.Errorf("expected 2 field errors, got %d: %v", len(err.Errors()), err)
	}
	if !strings.Contains(err.Error(), "ISO-8601") {
		t.Errorf("expected strictdate message, got %q", err.Error())
	}
}
