// Package testutil carries shared test helpers: a thread-safe log buffer,
// data-tree seeding with controlled mtimes, and an app-level build harness.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements io.Writer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements fmt.Stringer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteFile writes one file under root, creating parent directories. rel is
// slash-separated like a build target.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// SeedTree writes stage after stage of files under root, each stage with a
// strictly later mtime than the one before. A build over such a tree sees
// every later-stage file as fresh relative to its earlier-stage inputs.
func SeedTree(t *testing.T, root string, stages ...map[string]string) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(stages)+1) * time.Hour)
	for i, stage := range stages {
		stamp := base.Add(time.Duration(i) * time.Hour)
		for rel, content := range stage {
			path := WriteFile(t, root, rel, content)
			require.NoError(t, os.Chtimes(path, stamp, stamp))
		}
	}
}
