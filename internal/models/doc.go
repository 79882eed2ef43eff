// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package models defines the shared data types for Streetwatch: the Report
// entity and its duplicate-merge rule, aggregate statistics, the API
// response envelope, and the error taxonomy shared across packages.
package models
