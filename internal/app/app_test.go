package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/corpusmill/internal/profile"
)

func newApp(t *testing.T, cfg Config) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	a, err := New(out, logs, cfg, profile.NewHCLLoader())
	require.NoError(t, err)
	return a, out
}

func TestNew(t *testing.T) {
	t.Run("should fall back to the built-in profile", func(t *testing.T) {
		a, _ := newApp(t, Config{Mode: "test", DataRoot: t.TempDir()})

		assert.Equal(t, "test", a.profile.Mode)
		assert.Equal(t, []string{"all"}, a.cfg.Targets, "no targets means the all goal")
		assert.NotNil(t, a.table)
		assert.NotNil(t, a.registry)
	})

	t.Run("should load a profile file and keep command-line overrides on top", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "profile.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`
data_root = "/srv/corpus"
mode      = "full"
workers   = 3
`), 0o644))

		a, _ := newApp(t, Config{ProfilePath: path, Mode: "test"})

		assert.Equal(t, "/srv/corpus", a.profile.DataRoot)
		assert.Equal(t, "test", a.profile.Mode, "flags beat the profile file")
		assert.Equal(t, 3, a.profile.Workers)
	})

	t.Run("should reject an unknown mode", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, &bytes.Buffer{}, Config{Mode: "weekly"}, profile.NewHCLLoader())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown source table mode")
	})

	t.Run("should surface profile validation errors", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, &bytes.Buffer{}, Config{Mode: "test", Workers: -1}, profile.NewHCLLoader())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workers must not be negative")
	})
}
