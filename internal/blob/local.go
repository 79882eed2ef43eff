// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/streetwatch/streetwatch/internal/config"
	"github.com/streetwatch/streetwatch/internal/logging"
)

const (
	stagingDir = "staging"
	publicDir  = "public"
	deniedDir  = "denied"
)

// LocalStore keeps images on the local filesystem under a staging and a
// public directory. The public directory is expected to be served by the
// frontend proxy at PublicURL.
type LocalStore struct {
	root      string
	publicURL string
}

// NewLocalStore creates the directory layout under cfg.Path.
func NewLocalStore(cfg config.BlobConfig) (*LocalStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("blob path is required for the local backend")
	}
	for _, dir := range []string{stagingDir, publicDir, deniedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Path, dir), 0o750); err != nil {
			return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
		}
	}
	return &LocalStore{
		root:      cfg.Path,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// SaveStaged writes the upload into the staging directory.
func (s *LocalStore) SaveStaged(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := stagedName(filename)
	dest := filepath.Join(s.root, stagingDir, name)

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create staged image: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("write staged image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("close staged image: %w", err)
	}
	return filepath.Join(stagingDir, name), nil
}

// Promote copies the staged image into the public directory, verifies the
// copy's size, then removes the staged original.
func (s *LocalStore) Promote(ctx context.Context, stagedPath, key string) (string, string, error) {
	if stagedPath == "" {
		return "", "", ErrNoImage
	}
	storedPath, err := s.relocate(stagedPath, publicDir, key)
	if err != nil {
		return "", "", err
	}
	return storedPath, s.publicURL + "/" + filepath.Base(storedPath), nil
}

// Quarantine moves a staged image into the denied directory, which is
// never served.
func (s *LocalStore) Quarantine(ctx context.Context, stagedPath, key string) (string, error) {
	if stagedPath == "" {
		return "", ErrNoImage
	}
	return s.relocate(stagedPath, deniedDir, key)
}

// relocate is copy-verify-delete: a failed copy leaves the staged
// original untouched, so the image always exists somewhere.
func (s *LocalStore) relocate(stagedPath, destDir, key string) (string, error) {
	if err := CheckStagedPath(stagedPath); err != nil {
		return "", err
	}
	src, err := s.joinUnder(stagedPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat staged image: %w", err)
	}

	storedPath := filepath.Join(destDir, storedName(stagedPath, key))
	dest := filepath.Join(s.root, storedPath)

	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}

	copied, err := os.Stat(dest)
	if err != nil {
		return "", fmt.Errorf("verify copied image: %w", err)
	}
	if copied.Size() != info.Size() {
		_ = os.Remove(dest)
		return "", fmt.Errorf("copied image size mismatch: %d != %d", copied.Size(), info.Size())
	}

	if err := os.Remove(src); err != nil {
		// The copy is in place; a leftover staged file is harmless and
		// will be picked up by the retention sweep.
		logging.Warn().Err(err).Str("path", stagedPath).Msg("Failed to remove staged image after relocate")
	}

	return storedPath, nil
}

// Discard removes a staged image. Missing files are ignored.
func (s *LocalStore) Discard(ctx context.Context, stagedPath string) error {
	if stagedPath == "" {
		return nil
	}
	if err := CheckStagedPath(stagedPath); err != nil {
		return err
	}
	src, err := s.joinUnder(stagedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard staged image: %w", err)
	}
	return nil
}

// Remove deletes a promoted public image. Missing files are ignored.
func (s *LocalStore) Remove(ctx context.Context, storedPath string) error {
	if storedPath == "" {
		return nil
	}
	dest, err := s.joinUnder(storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// joinUnder joins rel under the store root and rejects any path whose
// cleaned form escapes it.
func (s *LocalStore) joinUnder(rel string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", ErrInvalidStagedPath
	}
	return p, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}
