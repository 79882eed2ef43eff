// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package geocode

import "regexp"

// cityStateRe matches a bare "City, ST" formatted address, the typical
// shape of a result that resolved only to a locality.
var cityStateRe = regexp.MustCompile(`^[A-Za-z .'\-]+,\s*[A-Z]{2}$`)

// Component types that anchor a result to a specific place.
var anchorTypes = map[string]bool{
	"street_number": true,
	"route":         true,
	"establishment": true,
	"premise":       true,
}

// preciseEnough rejects results too coarse to pin on the map: a bare
// country, fewer than three address components, a bare city/state
// locality, or anything without a street number, route, establishment,
// or premise component. Low-precision pins would merge unrelated
// reports under one city-level key.
func preciseEnough(r *providerResult) bool {
	// A bare country resolves to a single component, so the component
	// floor covers it too.
	if len(r.AddressComponents) < 3 {
		return false
	}
	if cityStateRe.MatchString(r.FormattedAddress) {
		return false
	}
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			if anchorTypes[t] {
				return true
			}
		}
	}
	return false
}
