// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package supervisor builds the suture supervision tree that runs the
// service's long-lived components.
//
// The tree has two child layers under the root:
//
//	streetwatch
//	├── jobs-layer
//	│   ├── archival-migration   (nightly live → archive move)
//	│   └── audit-retention      (hourly audit event pruning)
//	└── api-layer
//	    └── http-server
//
// Each component is wrapped as a suture.Service so a crash restarts
// only that component, with the failure thresholds and backoff from
// TreeConfig. Supervisor events are logged through sutureslog, bridged
// to zerolog by the logging package's slog handler.
package supervisor
