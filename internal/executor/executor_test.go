package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/corpusmill/internal/dag"
	"github.com/vk/corpusmill/internal/rules"
)

func touch(t *testing.T, root, target string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(target))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("fixture\n"), 0o644))
}

// writeOutputs is a native action that materializes every declared output.
func writeOutputs() rules.Action {
	return rules.Native{Name: "write", Run: func(_ context.Context, inv rules.Invocation) error {
		for _, out := range inv.Outputs {
			if err := os.WriteFile(out, []byte("data\n"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}}
}

func buildGraph(t *testing.T, reg *rules.Registry, root string, targets ...string) *dag.Graph {
	t.Helper()
	g, err := dag.Build(context.Background(), reg, root, targets)
	require.NoError(t, err)
	return g
}

func runGraph(t *testing.T, g *dag.Graph, opts Options) *BuildResult {
	t.Helper()
	ex, err := New(g, opts)
	require.NoError(t, err)
	return ex.Run(context.Background())
}

func resultFor(t *testing.T, res *BuildResult, target string) JobResult {
	t.Helper()
	for _, j := range res.Jobs {
		if j.Target == target {
			return j
		}
	}
	t.Fatalf("no result for target %s", target)
	return JobResult{}
}

func TestRunChain(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "tokenized/wikipedia/en.txt")

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "count",
		Outputs: []string{"counts/{source}/{lang}.txt"},
		Inputs:  []string{"tokenized/{source}/{lang}.txt"},
		Action:  writeOutputs(),
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "freqs",
		Outputs: []string{"freqs/{lang}.txt"},
		Inputs:  []string{"counts/wikipedia/{lang}.txt"},
		Action:  writeOutputs(),
	}))

	g := buildGraph(t, reg, root, "freqs/en.txt")
	res := runGraph(t, g, Options{Root: root, Workers: 2})

	assert.True(t, res.OK())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, StatusSucceeded, resultFor(t, res, "counts/wikipedia/en.txt").Status)
	assert.Equal(t, StatusSucceeded, resultFor(t, res, "freqs/en.txt").Status)
	assert.FileExists(t, filepath.Join(root, "freqs", "en.txt"))
	assert.Equal(t, map[Status]int{StatusSucceeded: 2}, res.Counts())
}

func TestRunFreshness(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "tokenized/wikipedia/en.txt")

	var executions atomic.Int32
	counting := rules.Native{Name: "write", Run: func(_ context.Context, inv rules.Invocation) error {
		executions.Add(1)
		for _, out := range inv.Outputs {
			if err := os.WriteFile(out, []byte("data\n"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}}

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "count",
		Outputs: []string{"counts/{source}/{lang}.txt"},
		Inputs:  []string{"tokenized/{source}/{lang}.txt"},
		Action:  counting,
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "freqs",
		Outputs: []string{"freqs/{lang}.txt"},
		Inputs:  []string{"counts/wikipedia/{lang}.txt"},
		Action:  counting,
	}))

	g := buildGraph(t, reg, root, "freqs/en.txt")
	res := runGraph(t, g, Options{Root: root})
	require.True(t, res.OK())
	require.EqualValues(t, 2, executions.Load())

	// Space the timestamps out so each output is strictly newer than its
	// inputs regardless of filesystem timestamp resolution.
	for i, target := range []string{
		"tokenized/wikipedia/en.txt",
		"counts/wikipedia/en.txt",
		"freqs/en.txt",
	} {
		when := time.Now().Add(time.Duration(i-3) * time.Hour)
		full := filepath.Join(root, filepath.FromSlash(target))
		require.NoError(t, os.Chtimes(full, when, when))
	}

	t.Run("should skip jobs whose outputs are newer than their inputs", func(t *testing.T) {
		g := buildGraph(t, reg, root, "freqs/en.txt")
		res := runGraph(t, g, Options{Root: root})

		assert.True(t, res.OK())
		assert.Equal(t, StatusSkippedFresh, resultFor(t, res, "counts/wikipedia/en.txt").Status)
		assert.Equal(t, StatusSkippedFresh, resultFor(t, res, "freqs/en.txt").Status)
		assert.False(t, resultFor(t, res, "freqs/en.txt").Executed)
		assert.EqualValues(t, 2, executions.Load(), "nothing re-executed")
	})

	t.Run("should rebuild everything under force", func(t *testing.T) {
		g := buildGraph(t, reg, root, "freqs/en.txt")
		res := runGraph(t, g, Options{Root: root, Force: true})

		assert.True(t, res.OK())
		assert.Equal(t, StatusSucceeded, resultFor(t, res, "freqs/en.txt").Status)
		assert.EqualValues(t, 4, executions.Load())
	})

	t.Run("should rebuild when an input is touched", func(t *testing.T) {
		now := time.Now()
		full := filepath.Join(root, "tokenized", "wikipedia", "en.txt")
		require.NoError(t, os.Chtimes(full, now, now))

		g := buildGraph(t, reg, root, "freqs/en.txt")
		res := runGraph(t, g, Options{Root: root})

		assert.True(t, res.OK())
		assert.Equal(t, StatusSucceeded, resultFor(t, res, "counts/wikipedia/en.txt").Status)
		assert.Equal(t, StatusSucceeded, resultFor(t, res, "freqs/en.txt").Status)
	})
}

func TestRunFailureIsolation(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "fix/en.txt")
	touch(t, root, "fix/fr.txt")

	failing := rules.Native{Name: "fail", Run: func(context.Context, rules.Invocation) error {
		return errors.New("synthetic failure")
	}}

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "ok",
		Outputs: []string{"ok/{lang}.txt"},
		Inputs:  []string{"fix/{lang}.txt"},
		Action:  writeOutputs(),
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "bad",
		Outputs: []string{"bad/{lang}.txt"},
		Inputs:  []string{"fix/{lang}.txt"},
		Action:  failing,
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "bad-top",
		Outputs: []string{"bad-top/{lang}.txt"},
		Inputs:  []string{"bad/{lang}.txt"},
		Action:  writeOutputs(),
	}))

	g := buildGraph(t, reg, root, "ok/en.txt", "bad-top/fr.txt")
	res := runGraph(t, g, Options{Root: root, Workers: 4})

	assert.False(t, res.OK())
	assert.Equal(t, StatusSucceeded, resultFor(t, res, "ok/en.txt").Status,
		"an unrelated branch keeps building")
	assert.Equal(t, StatusFailed, resultFor(t, res, "bad/fr.txt").Status)

	skipped := resultFor(t, res, "bad-top/fr.txt")
	assert.Equal(t, StatusSkippedUpstream, skipped.Status)
	require.Error(t, skipped.Err)
	assert.Contains(t, skipped.Err.Error(), "bad/fr.txt")

	require.Len(t, res.Failures(), 1)
	assert.Equal(t, "bad/fr.txt", res.Failures()[0].Target)
}

func TestRunPreFailedJob(t *testing.T) {
	root := t.TempDir()

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "needs-missing",
		Outputs: []string{"mid.txt"},
		Inputs:  []string{"missing.txt"},
		Action:  writeOutputs(),
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "top",
		Outputs: []string{"top.txt"},
		Inputs:  []string{"mid.txt"},
		Action:  writeOutputs(),
	}))

	g := buildGraph(t, reg, root, "top.txt")
	res := runGraph(t, g, Options{Root: root})

	assert.False(t, res.OK())
	mid := resultFor(t, res, "mid.txt")
	assert.Equal(t, StatusFailed, mid.Status)
	assert.False(t, mid.Executed)
	var unresolvable *dag.UnresolvableTargetError
	require.ErrorAs(t, mid.Err, &unresolvable)
	assert.Equal(t, "missing.txt", unresolvable.Target)

	assert.Equal(t, StatusSkippedUpstream, resultFor(t, res, "top.txt").Status)
}

func TestRunPoolSerialization(t *testing.T) {
	root := t.TempDir()
	for _, lang := range []string{"en", "fr", "de"} {
		touch(t, root, "fix/"+lang+".txt")
	}

	var running, maxRunning atomic.Int32
	slow := rules.Native{Name: "slow", Run: func(_ context.Context, inv rules.Invocation) error {
		cur := running.Add(1)
		for {
			m := maxRunning.Load()
			if cur <= m || maxRunning.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return os.WriteFile(inv.Outputs[0], []byte("data\n"), 0o644)
	}}

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "pooled",
		Outputs: []string{"out/{lang}.txt"},
		Inputs:  []string{"fix/{lang}.txt"},
		Action:  slow,
		Pools:   []string{"download"},
	}))

	g := buildGraph(t, reg, root, "out/en.txt", "out/fr.txt", "out/de.txt")
	res := runGraph(t, g, Options{
		Root:           root,
		Workers:        4,
		PoolCapacities: map[string]int{"download": 1},
	})

	assert.True(t, res.OK())
	assert.EqualValues(t, 1, maxRunning.Load(), "pool of one serializes its jobs")
}

func TestRunPriorityOrder(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var order []string
	recording := func() rules.Action {
		return rules.Native{Name: "record", Run: func(_ context.Context, inv rules.Invocation) error {
			mu.Lock()
			order = append(order, strings.TrimSuffix(filepath.Base(inv.Outputs[0]), ".partial"))
			mu.Unlock()
			return os.WriteFile(inv.Outputs[0], []byte("data\n"), 0o644)
		}}
	}

	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name: "low", Outputs: []string{"out/low.txt"}, Action: recording(), Priority: 0,
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name: "high", Outputs: []string{"out/high.txt"}, Action: recording(), Priority: 20,
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name: "mid", Outputs: []string{"out/mid.txt"}, Action: recording(), Priority: 10,
	}))

	// One worker makes the dispatch order observable.
	g := buildGraph(t, reg, root, "out/low.txt", "out/high.txt", "out/mid.txt")
	res := runGraph(t, g, Options{Root: root, Workers: 1})

	require.True(t, res.OK())
	assert.Equal(t, []string{"high.txt", "mid.txt", "low.txt"}, order)
}

func TestRunCommandAction(t *testing.T) {
	t.Run("should substitute placeholders and commit the output", func(t *testing.T) {
		root := t.TempDir()
		reg := rules.NewRegistry()
		require.NoError(t, reg.Register(rules.Decl{
			Name:    "greet",
			Outputs: []string{"out/{lang}.txt"},
			Action:  rules.Command{Template: "printf 'hello %s\\n' {lang} > {output}"},
		}))

		g := buildGraph(t, reg, root, "out/en.txt")
		res := runGraph(t, g, Options{Root: root})

		require.True(t, res.OK())
		data, err := os.ReadFile(filepath.Join(root, "out", "en.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello en\n", string(data))
		assert.Contains(t, resultFor(t, res, "out/en.txt").Command, "en.txt.partial")
	})

	t.Run("should pass extra env and leave shell expansions alone", func(t *testing.T) {
		root := t.TempDir()
		reg := rules.NewRegistry()
		require.NoError(t, reg.Register(rules.Decl{
			Name:    "env",
			Outputs: []string{"out.txt"},
			Action: rules.Command{
				Template: `printf '%s' "${GREETING}" > {output}`,
				Env:      []string{"GREETING=bonjour"},
			},
		}))

		g := buildGraph(t, reg, root, "out.txt")
		res := runGraph(t, g, Options{Root: root})

		require.True(t, res.OK())
		data, err := os.ReadFile(filepath.Join(root, "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "bonjour", string(data))
	})

	t.Run("should report exit code and stderr tail on failure", func(t *testing.T) {
		root := t.TempDir()
		reg := rules.NewRegistry()
		require.NoError(t, reg.Register(rules.Decl{
			Name:    "boom",
			Outputs: []string{"out.txt"},
			Action:  rules.Command{Template: "echo partial > {output}; echo it broke >&2; exit 3"},
		}))

		g := buildGraph(t, reg, root, "out.txt")
		res := runGraph(t, g, Options{Root: root})

		assert.False(t, res.OK())
		failed := resultFor(t, res, "out.txt")
		assert.Equal(t, StatusFailed, failed.Status)

		var cmdErr *ExternalCommandError
		require.ErrorAs(t, failed.Err, &cmdErr)
		assert.Equal(t, 3, cmdErr.ExitCode)
		assert.Contains(t, cmdErr.Stderr, "it broke")

		// The half-written staged file is discarded; nothing reaches the
		// final path.
		assert.NoFileExists(t, filepath.Join(root, "out.txt"))
		assert.NoFileExists(t, filepath.Join(root, "out.txt.partial"))
	})
}

func TestRunMissingOutputFails(t *testing.T) {
	root := t.TempDir()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "lazy",
		Outputs: []string{"out.txt"},
		Action:  rules.Native{Name: "noop", Run: func(context.Context, rules.Invocation) error { return nil }},
	}))

	g := buildGraph(t, reg, root, "out.txt")
	res := runGraph(t, g, Options{Root: root})

	assert.False(t, res.OK())
	failed := resultFor(t, res, "out.txt")
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Err.Error(), "committing output")
}

func TestRunAbort(t *testing.T) {
	root := t.TempDir()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "a",
		Outputs: []string{"a.txt"},
		Action:  writeOutputs(),
	}))
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "b",
		Outputs: []string{"b.txt"},
		Inputs:  []string{"a.txt"},
		Action:  writeOutputs(),
	}))

	g := buildGraph(t, reg, root, "b.txt")
	ex, err := New(g, Options{Root: root})
	require.NoError(t, err)

	ex.Abort()
	res := ex.Run(context.Background())

	assert.False(t, res.OK())
	assert.Equal(t, StatusSkippedAbort, resultFor(t, res, "a.txt").Status)
	assert.Equal(t, StatusSkippedAbort, resultFor(t, res, "b.txt").Status)
	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
}

func TestNewValidation(t *testing.T) {
	root := t.TempDir()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.Decl{
		Name:    "pooled",
		Outputs: []string{"out.txt"},
		Action:  writeOutputs(),
		Pools:   []string{"download"},
	}))
	g := buildGraph(t, reg, root, "out.txt")

	t.Run("should require a data root", func(t *testing.T) {
		_, err := New(g, Options{})
		require.Error(t, err)
	})

	t.Run("should reject a rule pool with no configured capacity", func(t *testing.T) {
		_, err := New(g, Options{Root: root})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `pool "download"`)
	})

	t.Run("should reject a non-positive pool capacity", func(t *testing.T) {
		_, err := New(g, Options{Root: root, PoolCapacities: map[string]int{"download": 0}})
		require.Error(t, err)
	})
}
