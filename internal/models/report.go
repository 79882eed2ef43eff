// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package models

import (
	"time"
)

// ReportState identifies the moderation state of a report. The state is
// implicit in which store bucket a report lives in; the constants exist for
// API payloads and audit events.
type ReportState string

const (
	StatePending  ReportState = "pending"
	StateVerified ReportState = "verified"
	StateDenied   ReportState = "denied"
	StateArchived ReportState = "archived"
)

// Report is the central entity: one physical location with at least one
// community submission. Reports are keyed by the address key derived from
// the geocoder's formatted address, never by user input.
type Report struct {
	// AddedAt is the submission timestamp of the most recent merge winner,
	// UTC with millisecond precision.
	AddedAt time.Time `json:"added_at"`

	// Address is the geocoder's formatted address, the authoritative form.
	Address string `json:"address"`

	// AdditionalInfo is sanitized, length-capped free text.
	AdditionalInfo string `json:"additional_info,omitempty"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	// ReportedCount is the number of submissions that resolved to this
	// address key. Always >= 1 for a stored report.
	ReportedCount int64 `json:"reported_count"`

	// ImagePath is the blob-store object path while the report is pending
	// or denied.
	ImagePath string `json:"image_path,omitempty"`

	// ImageURL is the minted public URL, set only once verified.
	ImageURL string `json:"image_url,omitempty"`

	// VerifiedAt is set when a verifier approves the report.
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// Count returns the reported count, defaulting to 1 for records written
// before the counter existed.
func (r *Report) Count() int64 {
	if r.ReportedCount < 1 {
		return 1
	}
	return r.ReportedCount
}

// Merge combines two reports that resolved to the same address key.
// Descriptive fields come from whichever record has the later AddedAt
// (most-recent-wins); counts are summed, with absent counts treated as 1.
// Neither input is mutated.
func Merge(a, b *Report) *Report {
	newer, older := a, b
	if b.AddedAt.After(a.AddedAt) {
		newer, older = b, a
	}

	merged := *newer
	merged.ReportedCount = a.Count() + b.Count()

	// A verified entry keeps its verification provenance even when the
	// incoming record is newer but unverified.
	if merged.VerifiedAt.IsZero() {
		merged.VerifiedAt = older.VerifiedAt
	}
	if merged.ImageURL == "" {
		merged.ImageURL = older.ImageURL
	}

	return &merged
}

// ConsolidateByKey groups reports under recomputed address keys and merges
// duplicates with the same rule ingestion uses. Entries whose recomputed key
// is empty cannot be stored and are dropped. keyFn is the address-key
// derivation, injected so the merge semantics stay testable in isolation.
func ConsolidateByKey(entries map[string]*Report, keyFn func(string) string) map[string]*Report {
	out := make(map[string]*Report, len(entries))

	for _, r := range entries {
		key := keyFn(r.Address)
		if key == "" {
			continue
		}
		if existing, ok := out[key]; ok {
			out[key] = Merge(existing, r)
		} else {
			cp := *r
			cp.ReportedCount = r.Count()
			out[key] = &cp
		}
	}

	return out
}
