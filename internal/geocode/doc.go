// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package geocode wraps the external geocoding provider.
//
// Resolution is all-or-nothing: either the provider returns a match
// precise enough to pin (street number, route, establishment, or
// premise), or the caller sees not-found. Coarse results - a country, a
// bare "City, ST", anything with fewer than three address components -
// are rejected so that unrelated reports never collapse under a
// city-level address key. Calls are paced with a token bucket because
// the provider bills per request.
package geocode
