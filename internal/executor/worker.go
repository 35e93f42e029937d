package executor

import (
	"container/heap"
	"context"
	"time"

	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/dag"
)

// worker is the processing loop for one concurrent job slot.
func (e *Executor) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for {
		j := e.next()
		if j == nil {
			break
		}
		e.process(ctx, j)
	}
	logger.Debug("Worker finished.")
}

// next blocks until a job is ready or the graph has drained. It returns nil
// when no work remains.
func (e *Executor) next() *dag.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.ready) == 0 && e.pending > 0 {
		e.cond.Wait()
	}
	if len(e.ready) == 0 {
		return nil
	}
	return heap.Pop(&e.ready).(*dag.Job)
}

// process drives one job to a terminal status.
func (e *Executor) process(ctx context.Context, j *dag.Job) {
	logger := ctxlog.FromContext(ctx).With("target", j.Target(), "rule", j.Rule.Name)

	e.mu.Lock()
	aborted := e.aborted
	e.mu.Unlock()
	if aborted || ctx.Err() != nil {
		logger.Debug("Skipping job, build aborted.")
		e.finish(j, JobResult{Target: j.Target(), Rule: j.Rule.Name, Status: StatusSkippedAbort})
		return
	}

	if j.PreFailure != nil {
		logger.Error("Job failed before launch.", "error", j.PreFailure)
		e.finish(j, JobResult{Target: j.Target(), Rule: j.Rule.Name, Status: StatusFailed, Err: j.PreFailure})
		return
	}

	if !e.opts.Force && e.outputsFresh(ctx, j) {
		logger.Debug("Outputs up to date, skipping.")
		e.finish(j, JobResult{Target: j.Target(), Rule: j.Rule.Name, Status: StatusSkippedFresh})
		return
	}

	release, err := e.pools.Acquire(ctx, j.Rule.Pools)
	if err != nil {
		// Only cancellation can interrupt an acquire on a validated pool set.
		logger.Debug("Skipping job, build aborted while waiting for pools.")
		e.finish(j, JobResult{Target: j.Target(), Rule: j.Rule.Name, Status: StatusSkippedAbort})
		return
	}

	logger.Debug("Job started.")
	e.metrics.JobStarted()
	started := time.Now()
	cmdline, runErr := e.execute(ctx, j)
	duration := time.Since(started)
	release()

	res := JobResult{
		Target:   j.Target(),
		Rule:     j.Rule.Name,
		Command:  cmdline,
		Started:  started,
		Duration: duration,
		Executed: true,
	}
	if runErr != nil {
		res.Status = StatusFailed
		res.Err = runErr
		logger.Error("Job failed.", "error", runErr, "duration", duration.Round(time.Millisecond))
	} else {
		res.Status = StatusSucceeded
		logger.Info("Job finished.", "duration", duration.Round(time.Millisecond))
	}
	e.finish(j, res)
}
