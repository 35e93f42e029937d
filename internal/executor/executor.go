// Package executor runs a job graph on a fixed worker pool. Ready jobs are
// dispatched by priority, resource pools bound the expensive stages, jobs
// whose outputs are newer than their inputs are skipped, and a failure skips
// exactly its downstream closure while unrelated branches keep building.
package executor

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/dag"
	"github.com/vk/corpusmill/internal/metrics"
)

// Status is the terminal state of one job.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusSkippedFresh    Status = "skipped_fresh"
	StatusSkippedUpstream Status = "skipped_upstream"
	StatusSkippedAbort    Status = "skipped_abort"
)

// JobResult records how one job ended.
type JobResult struct {
	Target   string
	Rule     string
	Status   Status
	Err      error
	Command  string
	Started  time.Time
	Duration time.Duration
	// Executed reports whether the job's action actually ran, as opposed to
	// being skipped or failing before launch.
	Executed bool
}

// BuildResult is the outcome of one executor run.
type BuildResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// Jobs holds one result per graph job, in job creation order.
	Jobs []JobResult
}

// WallTime is the elapsed time of the whole run.
func (r *BuildResult) WallTime() time.Duration { return r.Finished.Sub(r.Started) }

// OK reports whether every job either succeeded or was skipped as fresh.
func (r *BuildResult) OK() bool {
	for _, j := range r.Jobs {
		if j.Status != StatusSucceeded && j.Status != StatusSkippedFresh {
			return false
		}
	}
	return true
}

// Counts tallies jobs by terminal status.
func (r *BuildResult) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, j := range r.Jobs {
		out[j.Status]++
	}
	return out
}

// Failures returns the jobs that failed, in job creation order.
func (r *BuildResult) Failures() []JobResult {
	var out []JobResult
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			out = append(out, j)
		}
	}
	return out
}

// Options configures an Executor.
type Options struct {
	// Root is the data root directory all targets are relative to.
	Root string
	// Workers is the number of concurrent job slots. Defaults to GOMAXPROCS.
	Workers int
	// Force disables freshness skipping and rebuilds every job.
	Force bool
	// PoolCapacities sizes the named resource pools rules may reference.
	PoolCapacities map[string]int
	// Metrics receives scheduler instrumentation. Defaults to a fresh
	// collector.
	Metrics *metrics.Collector
}

// Executor schedules one graph. It is single-use: construct, Run once.
type Executor struct {
	graph   *dag.Graph
	opts    Options
	pools   *Pools
	metrics *metrics.Collector

	mu         sync.Mutex
	cond       *sync.Cond
	ready      readyQueue
	pending    int
	depCount   map[*dag.Job]int
	dependents map[*dag.Job][]*dag.Job
	blockedBy  map[*dag.Job]string
	results    map[*dag.Job]*JobResult
	aborted    bool
}

// New validates the options against the graph and prepares an Executor.
// Every pool a rule references must have a configured capacity.
func New(graph *dag.Graph, opts Options) (*Executor, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("executor needs a data root")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}

	pools, err := NewPools(opts.PoolCapacities, opts.Metrics)
	if err != nil {
		return nil, err
	}
	for _, j := range graph.Jobs() {
		for _, name := range j.Rule.Pools {
			if !pools.Has(name) {
				return nil, fmt.Errorf("rule %q uses pool %q, which has no configured capacity", j.Rule.Name, name)
			}
		}
	}

	e := &Executor{
		graph:      graph,
		opts:       opts,
		pools:      pools,
		metrics:    opts.Metrics,
		pending:    len(graph.Jobs()),
		depCount:   make(map[*dag.Job]int),
		dependents: graph.Dependents(),
		blockedBy:  make(map[*dag.Job]string),
		results:    make(map[*dag.Job]*JobResult),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, j := range graph.Jobs() {
		e.depCount[j] = len(graph.Dependencies(j))
	}
	return e, nil
}

// Abort stops launching new jobs. Jobs already running finish normally and
// everything not yet started drains as skipped.
func (e *Executor) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Run executes the graph and blocks until every job has a terminal status.
// Cancelling ctx kills running commands; the remaining jobs drain as skipped.
func (e *Executor) Run(ctx context.Context) *BuildResult {
	log := ctxlog.FromContext(ctx)
	runID := uuid.NewString()
	started := time.Now()
	log.Info("🚀 Build starting.", "runID", runID, "jobs", len(e.graph.Jobs()), "workers", e.opts.Workers)

	e.mu.Lock()
	for _, j := range e.graph.Jobs() {
		if e.depCount[j] == 0 {
			heap.Push(&e.ready, j)
		}
	}
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, e.Abort)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	result := &BuildResult{RunID: runID, Started: started, Finished: time.Now()}
	for _, j := range e.graph.Jobs() {
		result.Jobs = append(result.Jobs, *e.results[j])
	}

	counts := result.Counts()
	log.Info("🏁 Build finished.",
		"runID", runID,
		"succeeded", counts[StatusSucceeded],
		"failed", counts[StatusFailed],
		"fresh", counts[StatusSkippedFresh],
		"skipped", counts[StatusSkippedUpstream]+counts[StatusSkippedAbort],
		"wallTime", result.WallTime().Round(time.Millisecond))
	return result
}

// finish records a terminal status and unlocks or cascades into dependents.
func (e *Executor) finish(j *dag.Job, res JobResult) {
	e.mu.Lock()
	e.finishLocked(j, res)
	e.mu.Unlock()
	e.cond.Broadcast()
}

// finishLocked settles one job and recursively settles dependents that can
// no longer run. A dependent becomes ready only when its last dependency
// settles cleanly; otherwise it inherits a skip here and never reaches a
// worker.
func (e *Executor) finishLocked(j *dag.Job, res JobResult) {
	e.results[j] = &res
	e.pending--
	e.metrics.JobFinished(string(res.Status), res.Duration.Seconds(), res.Executed)

	ok := res.Status == StatusSucceeded || res.Status == StatusSkippedFresh
	for _, dep := range e.dependents[j] {
		e.depCount[dep]--
		if !ok {
			if _, blocked := e.blockedBy[dep]; !blocked {
				e.blockedBy[dep] = j.Target()
			}
		}
		if e.depCount[dep] != 0 {
			continue
		}
		if cause, blocked := e.blockedBy[dep]; blocked {
			status := StatusSkippedUpstream
			if e.aborted {
				status = StatusSkippedAbort
			}
			e.finishLocked(dep, JobResult{
				Target: dep.Target(),
				Rule:   dep.Rule.Name,
				Status: status,
				Err:    fmt.Errorf("upstream target %s was not built", cause),
			})
			continue
		}
		heap.Push(&e.ready, dep)
	}
}
