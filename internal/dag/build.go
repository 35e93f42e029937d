package dag

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/fsutil"
	"github.com/vk/corpusmill/internal/rules"
)

// Build resolves the requested targets into a job graph. Configuration
// problems fail the build here: an ambiguous match anywhere, a cycle, or a
// requested target that nothing produces. A transitively required target that
// nothing produces is narrower: its consuming job is created pre-failed so
// only that branch fails once execution starts.
func Build(ctx context.Context, reg *rules.Registry, root string, requests []string) (*Graph, error) {
	log := ctxlog.FromContext(ctx)

	b := &builder{
		ctx:     ctx,
		reg:     reg,
		root:    root,
		memo:    make(map[string]resolution),
		onStack: make(map[string]int),
		graph:   &Graph{byOutput: make(map[string]*Job)},
	}

	seen := make(map[string]bool)
	for _, raw := range requests {
		target, err := cleanTarget(raw)
		if err != nil {
			return nil, err
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		b.graph.requested = append(b.graph.requested, target)

		// Any resolution error on a directly requested target aborts the
		// build, including UnresolvableTargetError: asking for something
		// nobody can produce is a configuration error, not a branch failure.
		job, err := b.resolve(target)
		if err != nil {
			return nil, err
		}
		if job == nil {
			log.Debug("Requested target is a pre-existing file with no producing rule.", "target", target)
		}
	}

	log.Debug("Dependency graph built.", "jobs", len(b.graph.jobs), "requested", len(b.graph.requested))
	return b.graph, nil
}

type resolution struct {
	job *Job
	err error
}

type builder struct {
	ctx     context.Context
	reg     *rules.Registry
	root    string
	memo    map[string]resolution
	onStack map[string]int
	stack   []string
	graph   *Graph
}

// resolve returns the job producing target, nil when the target is a
// pre-satisfied file, or an error. An *UnresolvableTargetError is special to
// the caller: at input position it pre-fails the consumer instead of
// aborting the build.
func (b *builder) resolve(target string) (*Job, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}

	if r, ok := b.memo[target]; ok {
		return r.job, r.err
	}
	if start, ok := b.onStack[target]; ok {
		chain := append(append([]string{}, b.stack[start:]...), target)
		return nil, &CycleError{Chain: chain}
	}

	tmpl, bindings, err := b.reg.Match(target)
	if err != nil {
		var noMatch *rules.NoMatchError
		if errors.As(err, &noMatch) {
			if fsutil.Exists(filepath.Join(b.root, filepath.FromSlash(target))) {
				b.memo[target] = resolution{}
				return nil, nil
			}
			r := resolution{err: &UnresolvableTargetError{Target: target}}
			b.memo[target] = r
			return nil, r.err
		}
		// Ambiguity is a registry configuration problem wherever it shows up.
		return nil, fmt.Errorf("resolving %q: %w", target, err)
	}

	outputs, err := tmpl.ExpandOutputs(bindings)
	if err != nil {
		return nil, fmt.Errorf("rule %q matched %q: %w", tmpl.Name, target, err)
	}
	inputs, err := tmpl.ExpandInputs(bindings)
	if err != nil {
		return nil, fmt.Errorf("rule %q matched %q: %w", tmpl.Name, target, err)
	}
	if tmpl.DynamicInputs != nil {
		dynamic, err := tmpl.DynamicInputs(bindings.Clone())
		if err != nil {
			return nil, fmt.Errorf("rule %q computing inputs for %q: %w", tmpl.Name, target, err)
		}
		inputs = append(inputs, dynamic...)
	}

	depth := len(b.stack)
	b.stack = append(b.stack, target)
	for _, out := range outputs {
		b.onStack[out] = depth
	}
	defer func() {
		b.stack = b.stack[:depth]
		for _, out := range outputs {
			delete(b.onStack, out)
		}
	}()

	var resolvedInputs []string
	var preFailure error
	for _, in := range inputs {
		cleaned, err := cleanTarget(in)
		if err != nil {
			return nil, fmt.Errorf("rule %q input for %q: %w", tmpl.Name, target, err)
		}
		resolvedInputs = append(resolvedInputs, cleaned)

		_, err = b.resolve(cleaned)
		if err != nil {
			var unresolvable *UnresolvableTargetError
			if errors.As(err, &unresolvable) {
				if preFailure == nil {
					preFailure = err
				}
				continue
			}
			return nil, err
		}
	}

	for _, out := range outputs {
		if other, claimed := b.graph.byOutput[out]; claimed {
			return nil, fmt.Errorf("target %q is produced by both rule %q and rule %q",
				out, other.Rule.Name, tmpl.Name)
		}
	}

	job := &Job{
		Rule:       tmpl,
		Wildcards:  bindings,
		Inputs:     resolvedInputs,
		Outputs:    outputs,
		PreFailure: preFailure,
		seq:        len(b.graph.jobs),
	}
	b.graph.jobs = append(b.graph.jobs, job)
	for _, out := range outputs {
		b.graph.byOutput[out] = job
		b.memo[out] = resolution{job: job}
	}
	return job, nil
}

// cleanTarget normalizes a target to a clean relative slash path and rejects
// anything escaping the data root.
func cleanTarget(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty target")
	}
	cleaned := path.Clean(strings.ReplaceAll(raw, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("target %q escapes the data root", raw)
	}
	return cleaned, nil
}
