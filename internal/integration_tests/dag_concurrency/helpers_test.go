package integration_tests

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/corpusmill/internal/dag"
	"github.com/vk/corpusmill/internal/executor"
	"github.com/vk/corpusmill/internal/rules"
)

// sleepDuration is how long each probe job holds its worker. Long enough to
// dwarf scheduling jitter, short enough to keep the suite quick.
const sleepDuration = 80 * time.Millisecond

// window is one job's observed execution interval.
type window struct {
	Start time.Time
	End   time.Time
}

// overlaps reports whether two windows intersect.
func (w window) overlaps(other window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// recorder collects execution windows from concurrently running probe jobs,
// keyed by output target.
type recorder struct {
	mu      sync.Mutex
	windows map[string]window
}

func newRecorder() *recorder {
	return &recorder{windows: make(map[string]window)}
}

func (r *recorder) record(target string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[target] = window{Start: start, End: end}
}

// windowOf returns the recorded window, failing the test when the job never
// executed.
func (r *recorder) windowOf(t *testing.T, target string) window {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[target]
	if !ok {
		t.Fatalf("job for %q never executed", target)
	}
	return w
}

// maxConcurrent is the peak number of simultaneously open windows. Ends sort
// before starts at the same instant, so back-to-back jobs do not count as
// parallel.
func (r *recorder) maxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	type event struct {
		at    time.Time
		delta int
	}
	var events []event
	for _, w := range r.windows {
		events = append(events, event{w.Start, +1}, event{w.End, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})

	var open, peak int
	for _, e := range events {
		open += e.delta
		if open > peak {
			peak = open
		}
	}
	return peak
}

// probeDecl builds a one-output rule that sleeps, writes its output for real,
// and records its execution window. The jobs run through the same staging and
// commit path as production rules.
func probeDecl(rec *recorder, name, output string, inputs []string) rules.Decl {
	return rules.Decl{
		Name:    name,
		Outputs: []string{output},
		Inputs:  inputs,
		Action: rules.Native{Name: name, Run: func(ctx context.Context, inv rules.Invocation) error {
			start := time.Now()
			time.Sleep(sleepDuration)
			if err := os.WriteFile(inv.Outputs[0], []byte(name+"\n"), 0o644); err != nil {
				return err
			}
			rec.record(output, start, time.Now())
			return nil
		}},
	}
}

// runGraph registers the declarations, resolves the targets against an empty
// data root and runs the graph with the given worker count. It returns the
// build result and the data root the outputs landed under.
func runGraph(t *testing.T, decls []rules.Decl, targets []string, workers int) (*executor.BuildResult, string) {
	t.Helper()
	reg := rules.NewRegistry()
	for _, d := range decls {
		require.NoError(t, reg.Register(d))
	}

	root := t.TempDir()
	graph, err := dag.Build(context.Background(), reg, root, targets)
	require.NoError(t, err)

	ex, err := executor.New(graph, executor.Options{Root: root, Workers: workers})
	require.NoError(t, err)
	res := ex.Run(context.Background())
	require.True(t, res.OK(), "probe build should finish clean: %+v", res.Counts())
	return res, root
}
