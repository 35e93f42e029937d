package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vk/corpusmill/internal/buildlog"
	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/dag"
	"github.com/vk/corpusmill/internal/executor"
	"github.com/vk/corpusmill/internal/metrics"
	"github.com/vk/corpusmill/internal/recipes"
)

// BuildFailedError reports a run that completed with failed or skipped jobs.
// It marks the difference between a broken invocation and a broken build.
type BuildFailedError struct {
	Failed  int
	Skipped int
	Total   int
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build finished with %d failed and %d skipped of %d jobs", e.Failed, e.Skipped, e.Total)
}

// Run plans and executes the build. The returned error is nil only when
// every job succeeded or was skipped as fresh.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	targets := recipes.ExpandGoals(a.table, a.cfg.Targets)
	graph, err := dag.Build(ctx, a.registry, a.profile.DataRoot, targets)
	if err != nil {
		return err
	}

	if a.cfg.DryRun {
		return a.printPlan(graph)
	}

	collector := metrics.NewCollector()
	ex, err := executor.New(graph, executor.Options{
		Root:           a.profile.DataRoot,
		Workers:        a.profile.Workers,
		Force:          a.cfg.Force,
		PoolCapacities: a.profile.Pools,
		Metrics:        collector,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := a.notifyInterrupts(runCtx, ex, cancel)
	defer stopSignals()

	if a.profile.MetricsAddr != "" {
		srv := metrics.NewServer(a.profile.MetricsAddr, collector)
		go func() {
			if err := srv.Start(runCtx); err != nil {
				a.logger.Warn("Metrics server stopped.", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Metrics server shutdown failed.", "error", err)
			}
		}()
	}

	res := ex.Run(runCtx)
	recordErr := a.record(res)

	if !res.OK() {
		counts := res.Counts()
		return &BuildFailedError{
			Failed:  counts[executor.StatusFailed],
			Skipped: counts[executor.StatusSkippedUpstream] + counts[executor.StatusSkippedAbort],
			Total:   len(res.Jobs),
		}
	}
	return recordErr
}

// printPlan writes the planned jobs in execution order without running
// anything. Jobs the graph already knows cannot run are marked.
func (a *App) printPlan(g *dag.Graph) error {
	for _, j := range g.TopoOrder() {
		line := fmt.Sprintf("%s\t%s", j.Target(), j.Rule.Name)
		if j.PreFailure != nil {
			line += fmt.Sprintf("\tblocked: %v", j.PreFailure)
		}
		if _, err := fmt.Fprintln(a.outW, line); err != nil {
			return err
		}
	}
	return nil
}

// notifyInterrupts aborts the build on the first interrupt and cancels
// outright on the second.
func (a *App) notifyInterrupts(ctx context.Context, ex *executor.Executor, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			a.logger.Warn("Interrupt received. Running jobs finish, nothing new starts. Interrupt again to kill.")
			ex.Abort()
		}
		select {
		case <-ctx.Done():
		case <-sigCh:
			a.logger.Warn("Second interrupt received, cancelling running jobs.")
			cancel()
		}
	}()
	return func() { signal.Stop(sigCh) }
}

// record persists the run to the history ledger and, when asked for, the
// report file. The ledger is advisory; the report was explicitly requested
// and its failure is the caller's to see.
func (a *App) record(res *executor.BuildResult) error {
	run := buildlog.FromBuildResult(res)

	ledger, err := buildlog.Open(a.profile.HistoryPath())
	if err != nil {
		a.logger.Warn("Build history unavailable.", "error", err)
	} else {
		if err := ledger.Append(run); err != nil {
			a.logger.Warn("Could not record build history.", "error", err)
		}
		if err := ledger.Close(); err != nil {
			a.logger.Warn("Could not close build history.", "error", err)
		}
	}

	if a.cfg.ReportPath == "" {
		return nil
	}
	f, err := os.Create(a.cfg.ReportPath)
	if err != nil {
		return fmt.Errorf("writing build report: %w", err)
	}
	if err := buildlog.WriteReport(f, run); err != nil {
		f.Close()
		return fmt.Errorf("writing build report: %w", err)
	}
	return f.Close()
}
