// Package oregantest provides small test helpers shared by the graph and
// executor test suites.
package oregantest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// RemoveAll wraps os.RemoveAll and fails the test on failure.
func RemoveAll(t testing.TB, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

// TempRoot creates a scratch directory for a test run and registers its
// removal via t.Cleanup.
func TempRoot(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "oregan-test")
	if err != nil {
		t.Fatalf("TempRoot: %v", err)
	}
	t.Cleanup(func() { RemoveAll(t, dir) })
	return dir
}

// Touch creates path (and its parent directories) with a one-byte content,
// then sets its modification time to mtime, so tests can construct a specific
// staleness ordering between files.
func Touch(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Touch: %v", err)
	}
}
