package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0755))

	// A symlink inside the safe directory that escapes it.
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	require.NoError(t, os.Symlink(unsafeDir, symlinkPath))

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file directly inside", filepath.Join(safeDir, "export.json"), safeDir, false},
		{"nested file inside", filepath.Join(safeDir, "sub", "export.json"), safeDir, false},
		{"dot-dot escape", filepath.Join(safeDir, "..", "unsafe", "secret.txt"), safeDir, true},
		{"absolute path outside", filepath.Join(unsafeDir, "secret.txt"), safeDir, true},
		{"through escaping symlink", filepath.Join(symlinkPath, "new.json"), safeDir, true},
		{"safe dir itself", safeDir, safeDir, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"tracks.json", "tracks.json"},
		{"tracks.json.gz", "tracks.json.gz"},
		{"run id with spaces", "run_id_with_spaces"},
		{"../../etc/passwd", "etc_passwd"},
		{"", "unknown"},
		{"###", "unknown"},
		{"run_0b5c-11", "run_0b5c-11"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}

	long := SanitizeFilename(strings.Repeat("a", 300))
	assert.LessOrEqual(t, len(long), 128)
}
