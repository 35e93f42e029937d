// Package fsutil provides the file system helpers the build shares: staged
// output paths, atomic commit by rename, and mtime lookups for freshness
// checks.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PartialSuffix is appended to output paths while a job is producing them.
// A completed job renames the partial file onto the final path, so a path
// without the suffix always holds a fully written file.
const PartialSuffix = ".partial"

// StagePath returns the temporary path a job writes to before committing.
func StagePath(path string) string {
	return path + PartialSuffix
}

// EnsureParentDir creates the directory containing path if it does not exist.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// CommitOutputs renames every staged output onto its final path. It fails on
// the first rename error, leaving earlier outputs committed; callers treat any
// error as a failed job so the half-committed state is rebuilt next run.
func CommitOutputs(paths []string) error {
	for _, p := range paths {
		if err := os.Rename(StagePath(p), p); err != nil {
			return fmt.Errorf("committing output %s: %w", p, err)
		}
	}
	return nil
}

// DiscardStaged removes any staged outputs left behind by a failed job.
// Missing files are ignored.
func DiscardStaged(paths []string) {
	for _, p := range paths {
		_ = os.Remove(StagePath(p))
	}
}

// ModTime returns the modification time of path. The boolean reports whether
// the file exists; any other stat failure is returned as the error.
func ModTime(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
