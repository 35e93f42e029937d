// Package dag builds the dependency graph for one build invocation: requested
// targets are matched against the rule registry, rule inputs are resolved
// recursively, and the resulting jobs form an acyclic graph the executor
// schedules. Graphs are built fresh per invocation and never persisted.
package dag

import (
	"fmt"
	"strings"

	"github.com/vk/corpusmill/internal/rules"
)

// Job is one concrete instantiation of a rule: bound wildcards plus resolved
// input and output targets. Targets are slash paths relative to the data
// root.
type Job struct {
	Rule      *rules.Template
	Wildcards rules.Bindings
	Inputs    []string
	Outputs   []string

	// PreFailure is set during graph build when a transitive input has no
	// producing rule and no file on disk. The job is scheduled normally and
	// fails immediately, so the failure stays scoped to its branch.
	PreFailure error

	seq int
}

// Target returns the job's primary output, which identifies it in logs and
// reports.
func (j *Job) Target() string { return j.Outputs[0] }

// Priority is the scheduling priority inherited from the rule.
func (j *Job) Priority() int { return j.Rule.Priority }

// Seq is the job creation sequence, the last scheduling tie-break.
func (j *Job) Seq() int { return j.seq }

// Graph is the set of jobs for one invocation with produces/consumes edges
// derived from target identity.
type Graph struct {
	jobs      []*Job
	byOutput  map[string]*Job
	requested []string
}

// Jobs returns all jobs in creation order.
func (g *Graph) Jobs() []*Job { return g.jobs }

// Requested returns the cleaned requested targets.
func (g *Graph) Requested() []string { return g.requested }

// Producer returns the job producing a target, if any. Targets without a
// producer were pre-satisfied files at build time.
func (g *Graph) Producer(target string) (*Job, bool) {
	j, ok := g.byOutput[target]
	return j, ok
}

// Dependencies returns the distinct jobs producing j's inputs, in input
// order.
func (g *Graph) Dependencies(j *Job) []*Job {
	var out []*Job
	seen := make(map[*Job]bool)
	for _, in := range j.Inputs {
		if dep, ok := g.byOutput[in]; ok && !seen[dep] {
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}

// Dependents returns, for every job, the distinct jobs consuming one of its
// outputs. The map is keyed by producing job.
func (g *Graph) Dependents() map[*Job][]*Job {
	out := make(map[*Job][]*Job, len(g.jobs))
	for _, consumer := range g.jobs {
		for _, dep := range g.Dependencies(consumer) {
			out[dep] = append(out[dep], consumer)
		}
	}
	return out
}

// TopoOrder returns the jobs in a dependency-respecting order, choosing among
// ready jobs by creation sequence. The graph is acyclic by construction, so
// every job appears.
func (g *Graph) TopoOrder() []*Job {
	indeg := make(map[*Job]int, len(g.jobs))
	for _, j := range g.jobs {
		indeg[j] = len(g.Dependencies(j))
	}
	dependents := g.Dependents()

	var order []*Job
	var ready []*Job
	for _, j := range g.jobs {
		if indeg[j] == 0 {
			ready = append(ready, j)
		}
	}
	for len(ready) > 0 {
		j := ready[0]
		ready = ready[1:]
		order = append(order, j)
		for _, dep := range dependents[j] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}

// CycleError reports a dependency cycle found while resolving a target.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Chain, " -> "))
}

// UnresolvableTargetError reports a target with no producing rule and no
// existing file.
type UnresolvableTargetError struct {
	Target string
}

func (e *UnresolvableTargetError) Error() string {
	return fmt.Sprintf("no rule produces %q and no such file exists", e.Target)
}
