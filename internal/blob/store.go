// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/streetwatch/streetwatch/internal/config"
)

// Store handles report images across their lifecycle: staged on
// submission, promoted to public storage on approval, removed on denial
// or deletion.
type Store interface {
	// SaveStaged writes an uploaded image into the staging area and
	// returns its staged path (the value persisted on the pending report).
	SaveStaged(ctx context.Context, filename string, r io.Reader) (string, error)

	// Promote relocates a staged image into public storage under the
	// report's address key. It copies first, verifies the copy, and only
	// then deletes the staged original, so a crash mid-promote never
	// loses the image. Returns the stored path and the public URL.
	Promote(ctx context.Context, stagedPath, key string) (storedPath, publicURL string, err error)

	// Quarantine relocates a staged image into the non-public denied
	// area. No URL is ever minted for a quarantined image; the returned
	// path goes into the audit record only. Same copy-verify-delete
	// discipline as Promote.
	Quarantine(ctx context.Context, stagedPath, key string) (string, error)

	// Discard deletes a staged image that will never be promoted.
	// Missing files are not an error: denial must succeed even when the
	// image is already gone.
	Discard(ctx context.Context, stagedPath string) error

	// Remove deletes a promoted public image.
	Remove(ctx context.Context, storedPath string) error
}

// ErrNoImage is returned by Promote when stagedPath is empty. Callers
// treat it as "nothing to relocate", not a failure.
var ErrNoImage = errors.New("report has no image")

// ErrInvalidStagedPath is returned for a staged path that does not match
// the shape SaveStaged produces. Staged paths come back from clients on
// submission, so anything else is rejected before it reaches storage.
var ErrInvalidStagedPath = errors.New("invalid staged image path")

// CheckStagedPath verifies that stagedPath has the exact
// staging/<uuid><ext> shape SaveStaged returns: no parent references, no
// absolute paths, no nested directories.
func CheckStagedPath(stagedPath string) error {
	dir, name, ok := strings.Cut(stagedPath, "/")
	if !ok || dir != stagingDir || name == "" || strings.Contains(name, "/") {
		return ErrInvalidStagedPath
	}
	if _, err := uuid.Parse(strings.TrimSuffix(name, path.Ext(name))); err != nil {
		return ErrInvalidStagedPath
	}
	return nil
}

// New selects the backend from configuration.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// stagedName builds a collision-free staging filename preserving the
// upload's extension.
func stagedName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return uuid.NewString() + ext
}

// storedName is the public object name for a promoted image: the address
// key plus the staged file's extension, so re-approvals overwrite rather
// than accumulate.
func storedName(stagedPath, key string) string {
	return key + strings.ToLower(path.Ext(stagedPath))
}
