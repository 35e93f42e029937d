package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/dag"
	"github.com/vk/corpusmill/internal/fsutil"
	"github.com/vk/corpusmill/internal/rules"
)

// execute runs the job's action against staged output paths and commits them
// on success. The returned string is the substituted command line for command
// actions, kept for the build record.
func (e *Executor) execute(ctx context.Context, j *dag.Job) (string, error) {
	finals := make([]string, len(j.Outputs))
	for i, out := range j.Outputs {
		finals[i] = e.abs(out)
		if err := fsutil.EnsureParentDir(finals[i]); err != nil {
			return "", fmt.Errorf("preparing output directory: %w", err)
		}
	}

	inv := rules.Invocation{
		Inputs:    make([]string, len(j.Inputs)),
		Outputs:   make([]string, len(finals)),
		Wildcards: j.Wildcards,
		Root:      e.opts.Root,
	}
	for i, in := range j.Inputs {
		inv.Inputs[i] = e.abs(in)
	}
	for i, final := range finals {
		inv.Outputs[i] = fsutil.StagePath(final)
	}

	var cmdline string
	var err error
	switch act := j.Rule.Action.(type) {
	case rules.Command:
		cmdline, err = substitute(act.Template, inv)
		if err == nil {
			err = e.runCommand(ctx, cmdline, act.Env)
		}
	case rules.Native:
		err = act.Run(ctx, inv)
	default:
		err = fmt.Errorf("rule %q has no runnable action", j.Rule.Name)
	}

	if err == nil {
		err = fsutil.CommitOutputs(finals)
	}
	if err != nil {
		fsutil.DiscardStaged(finals)
		return cmdline, err
	}
	return cmdline, nil
}

// outputsFresh reports whether every output exists and is strictly newer than
// every input. Equal timestamps are stale. Any stat problem, including a
// missing input, makes the job run.
func (e *Executor) outputsFresh(ctx context.Context, j *dag.Job) bool {
	logger := ctxlog.FromContext(ctx)

	var oldestOutput time.Time
	for i, out := range j.Outputs {
		mt, exists, err := fsutil.ModTime(e.abs(out))
		if err != nil {
			logger.Warn("Could not stat output, rebuilding.", "target", out, "error", err)
			return false
		}
		if !exists {
			return false
		}
		if i == 0 || mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	for _, in := range j.Inputs {
		mt, exists, err := fsutil.ModTime(e.abs(in))
		if err != nil {
			logger.Warn("Could not stat input, rebuilding.", "target", in, "error", err)
			return false
		}
		if !exists || !mt.Before(oldestOutput) {
			return false
		}
	}
	return true
}

// abs resolves a slash-relative target under the data root.
func (e *Executor) abs(target string) string {
	return filepath.Join(e.opts.Root, filepath.FromSlash(target))
}
