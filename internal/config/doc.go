// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

// Package config loads the server configuration with Koanf v2 from layered
// sources: built-in defaults, then an optional YAML config file, then a
// curated set of environment variables. ENV > file > defaults.
package config
