package rules

import "context"

// Invocation carries the resolved paths one job execution works with. Output
// paths point at the staging targets; the executor renames them into place
// after the action succeeds.
type Invocation struct {
	// Inputs are absolute paths of the resolved inputs, static then dynamic,
	// in declaration order.
	Inputs []string
	// Outputs are absolute staged paths, one per output pattern, in
	// declaration order.
	Outputs []string
	// Wildcards are the values bound when the rule matched.
	Wildcards Bindings
	// Root is the absolute data root directory.
	Root string
}

// Action is what a rule does when its job runs: either a shell command
// template or a native Go function.
type Action interface {
	isAction()
}

// Command runs a shell command with `{wildcard}`, `{input}`/`{inputN}`,
// `{output}`/`{outputN}` placeholders substituted.
type Command struct {
	// Template is the command line handed to the shell after substitution.
	Template string
	// Env adds variables on top of the inherited environment, KEY=VALUE.
	Env []string
}

func (Command) isAction() {}

// Native runs an in-process function.
type Native struct {
	// Name identifies the function in logs and build reports.
	Name string
	// Run performs the work, writing the staged output paths.
	Run func(ctx context.Context, inv Invocation) error
}

func (Native) isAction() {}

// DynamicFunc computes data-dependent extra inputs from the bound wildcards
// during graph construction. It is the one place graph shape depends on
// configuration data instead of pattern syntax.
type DynamicFunc func(b Bindings) ([]string, error)

// Decl is a rule declaration as the recipe layer writes it.
type Decl struct {
	// Name uniquely identifies the rule.
	Name string
	// Outputs are the path patterns this rule produces. Every output must
	// use the same wildcard set.
	Outputs []string
	// Inputs are path patterns expanded from the output bindings.
	Inputs []string
	// DynamicInputs, when set, appends computed concrete input targets.
	DynamicInputs DynamicFunc
	// Action is the command or native function to run.
	Action Action
	// Pools names the resource pools one unit of which the job must hold
	// while running.
	Pools []string
	// Priority orders otherwise-ready jobs, higher first.
	Priority int
}

// Template is a compiled, registered rule.
type Template struct {
	Decl

	outputs []Pattern
	inputs  []Pattern
	seq     int
}

// Seq is the registration sequence number, used as the scheduling tie-break.
func (t *Template) Seq() int { return t.seq }

// OutputPatterns returns the compiled output patterns.
func (t *Template) OutputPatterns() []Pattern { return t.outputs }

// ExpandOutputs instantiates every output pattern with the given bindings.
func (t *Template) ExpandOutputs(b Bindings) ([]string, error) {
	return expandAll(t.outputs, b)
}

// ExpandInputs instantiates the static input patterns with the given
// bindings. Dynamic inputs are the graph builder's job.
func (t *Template) ExpandInputs(b Bindings) ([]string, error) {
	return expandAll(t.inputs, b)
}

func expandAll(patterns []Pattern, b Bindings) ([]string, error) {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		s, err := p.Expand(b)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// MatchOutput binds the template's wildcards against a concrete path using
// the first output pattern that matches.
func (t *Template) MatchOutput(path string) (Bindings, bool) {
	for _, p := range t.outputs {
		if b, ok := p.Match(path); ok {
			return b, true
		}
	}
	return nil, false
}
