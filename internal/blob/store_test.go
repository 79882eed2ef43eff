// Streetwatch - Community Activity Reporting and Moderation
// Copyright 2026 Streetwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streetwatch/streetwatch

package blob

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCheckStagedPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"staged jpg", "staging/" + uuid.NewString() + ".jpg", true},
		{"staged without extension", "staging/" + uuid.NewString(), true},
		{"parent escape", "../secret.txt", false},
		{"parent escape through staging", "staging/../secret.txt", false},
		{"absolute path", "/etc/passwd", false},
		{"nested directory", "staging/sub/" + uuid.NewString() + ".jpg", false},
		{"wrong top directory", "public/" + uuid.NewString() + ".jpg", false},
		{"bare name", uuid.NewString() + ".jpg", false},
		{"non-uuid name", "staging/evil.php", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckStagedPath(tt.path)
			if tt.ok && err != nil {
				t.Errorf("CheckStagedPath(%q) error = %v, want nil", tt.path, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidStagedPath) {
				t.Errorf("CheckStagedPath(%q) error = %v, want ErrInvalidStagedPath", tt.path, err)
			}
		})
	}
}
