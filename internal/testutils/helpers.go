package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupFlowDir creates a temporary flows directory holding the given documents,
// keyed by file name. It returns the absolute path and fails the test immediately on error.
func SetupFlowDir(t *testing.T, files map[string]string) string {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	for name, content := range files {
		WriteFlow(t, absPath, name, content)
	}
	return absPath
}

// WriteFlow writes (or replaces) one flow document in dir.
func WriteFlow(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644), "Failed to write %s", name)
}
