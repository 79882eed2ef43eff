// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package blob stores report images.
//
// Images arrive with a pending submission and sit in a staging area
// invisible to the public. Approval promotes them into public storage
// (copy, verify, then delete the original); denial or deletion discards
// them. Two backends: local filesystem directories served by the
// frontend proxy, and S3-compatible object storage with server-side
// copies and presigned URLs.
package blob
