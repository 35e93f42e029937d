package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/corpusmill/internal/buildlog"
)

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	a, out := newApp(t, Config{
		Mode:     "test",
		DataRoot: root,
		DryRun:   true,
		Targets:  []string{"wordfreq/small_en.msgpack"},
	})

	require.NoError(t, a.Run(context.Background()))
	plan := out.String()

	t.Run("should list the plan in dependency order", func(t *testing.T) {
		tokenize := strings.Index(plan, "tokenized/opensubtitles/en.txt")
		count := strings.Index(plan, "counts/opensubtitles/en.txt")
		export := strings.Index(plan, "wordfreq/small_en.msgpack")
		require.GreaterOrEqual(t, tokenize, 0)
		require.GreaterOrEqual(t, count, 0)
		require.GreaterOrEqual(t, export, 0)
		assert.Less(t, tokenize, count)
		assert.Less(t, count, export)
	})

	t.Run("should mark jobs that cannot run", func(t *testing.T) {
		assert.Contains(t, plan, "blocked:", "the missing subtlex drop shows up in the plan")
		assert.Contains(t, plan, "raw/subtlex/en.csv")
	})

	t.Run("should not touch the data root", func(t *testing.T) {
		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestRunRecordsOutcome(t *testing.T) {
	root := t.TempDir()
	report := filepath.Join(root, "report.json")
	a, _ := newApp(t, Config{
		Mode:       "test",
		DataRoot:   root,
		Targets:    []string{"counts/subtlex/en.txt"},
		ReportPath: report,
	})

	err := a.Run(context.Background())

	t.Run("should surface job failures as a build error", func(t *testing.T) {
		var buildErr *BuildFailedError
		require.ErrorAs(t, err, &buildErr)
		assert.Equal(t, 1, buildErr.Failed)
		assert.Equal(t, 0, buildErr.Skipped)
		assert.Equal(t, 1, buildErr.Total)
	})

	t.Run("should append the run to the history ledger", func(t *testing.T) {
		ledger, err := buildlog.Open(a.Profile().HistoryPath())
		require.NoError(t, err)
		defer ledger.Close()

		run, err := ledger.Latest()
		require.NoError(t, err)
		require.Len(t, run.Jobs, 1)
		assert.Equal(t, "failed", run.Jobs[0].Status)
		assert.Contains(t, run.Jobs[0].Error, "raw/subtlex/en.csv")
	})

	t.Run("should write the requested report", func(t *testing.T) {
		data, err := os.ReadFile(report)
		require.NoError(t, err)

		var decoded struct {
			ID   string `json:"id"`
			Jobs []struct {
				Target string `json:"target"`
				Status string `json:"status"`
			} `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.NotEmpty(t, decoded.ID)
		require.Len(t, decoded.Jobs, 1)
		assert.Equal(t, "counts/subtlex/en.txt", decoded.Jobs[0].Target)
		assert.Equal(t, "failed", decoded.Jobs[0].Status)
	})
}
