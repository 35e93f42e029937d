package rules

import (
	"fmt"
	"sort"
	"strings"
)

// NoMatchError reports a path no registered rule produces.
type NoMatchError struct {
	Target string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no rule produces %q", e.Target)
}

// AmbiguousMatchError reports a path matched by several rules with no
// precedence declared between them.
type AmbiguousMatchError struct {
	Target    string
	Templates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("rules %s all produce %q and no precedence is declared",
		strings.Join(e.Templates, ", "), e.Target)
}

// Registry holds the compiled rule set and the precedence partial order.
// Registration happens once at startup; matching is pure and safe for
// concurrent use afterwards.
type Registry struct {
	templates []*Template
	byName    map[string]*Template
	prefer    map[string]map[string]bool // winner -> direct losers
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Template),
		prefer: make(map[string]map[string]bool),
	}
}

// Register compiles and adds a rule. It rejects duplicate names, rules
// without outputs, outputs with differing wildcard sets, and inputs that
// reference wildcards no output binds.
func (r *Registry) Register(d Decl) error {
	if d.Name == "" {
		return fmt.Errorf("rule with outputs %v has no name", d.Outputs)
	}
	if _, dup := r.byName[d.Name]; dup {
		return fmt.Errorf("rule %q registered twice", d.Name)
	}
	if len(d.Outputs) == 0 {
		return fmt.Errorf("rule %q has no outputs", d.Name)
	}
	if d.Action == nil {
		return fmt.Errorf("rule %q has no action", d.Name)
	}

	t := &Template{Decl: d, seq: len(r.templates)}
	for _, raw := range d.Outputs {
		p, err := NewPattern(raw)
		if err != nil {
			return fmt.Errorf("rule %q: %w", d.Name, err)
		}
		t.outputs = append(t.outputs, p)
	}

	bound := wildcardSet(t.outputs[0])
	for _, p := range t.outputs[1:] {
		if !sameSet(bound, wildcardSet(p)) {
			return fmt.Errorf("rule %q: outputs must share one wildcard set, %q differs from %q",
				d.Name, p, t.outputs[0])
		}
	}

	for _, raw := range d.Inputs {
		p, err := NewPattern(raw)
		if err != nil {
			return fmt.Errorf("rule %q: %w", d.Name, err)
		}
		for _, name := range p.Names() {
			if !bound[name] {
				return fmt.Errorf("rule %q: input %q references wildcard %q no output binds",
					d.Name, raw, name)
			}
		}
		t.inputs = append(t.inputs, p)
	}

	r.templates = append(r.templates, t)
	r.byName[d.Name] = t
	return nil
}

// Prefer declares that the winner rule beats the loser wherever both match a
// path. The relation is transitive.
func (r *Registry) Prefer(winner, loser string) error {
	if winner == loser {
		return fmt.Errorf("rule %q cannot be preferred over itself", winner)
	}
	for _, name := range []string{winner, loser} {
		if _, ok := r.byName[name]; !ok {
			return fmt.Errorf("precedence references unregistered rule %q", name)
		}
	}
	losers, ok := r.prefer[winner]
	if !ok {
		losers = make(map[string]bool)
		r.prefer[winner] = losers
	}
	losers[loser] = true
	return nil
}

// prefers reports whether winner beats loser directly or transitively.
func (r *Registry) prefers(winner, loser string) bool {
	seen := map[string]bool{winner: true}
	queue := []string{winner}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range r.prefer[cur] {
			if next == loser {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Template looks up a registered rule by name.
func (r *Registry) Template(name string) (*Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Templates returns all rules in registration order.
func (r *Registry) Templates() []*Template { return r.templates }

// Match finds the rule producing a concrete path and the wildcard values the
// match binds. With several candidates, the unique rule preferred over every
// other candidate wins; otherwise the match is ambiguous. Registration order
// never breaks a tie.
func (r *Registry) Match(path string) (*Template, Bindings, error) {
	type candidate struct {
		t *Template
		b Bindings
	}
	var candidates []candidate
	for _, t := range r.templates {
		if b, ok := t.MatchOutput(path); ok {
			candidates = append(candidates, candidate{t: t, b: b})
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil, &NoMatchError{Target: path}
	case 1:
		return candidates[0].t, candidates[0].b, nil
	}

	var winners []candidate
	for _, c := range candidates {
		beatsAll := true
		for _, other := range candidates {
			if other.t == c.t {
				continue
			}
			if !r.prefers(c.t.Name, other.t.Name) {
				beatsAll = false
				break
			}
		}
		if beatsAll {
			winners = append(winners, c)
		}
	}
	if len(winners) == 1 {
		return winners[0].t, winners[0].b, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.t.Name
	}
	sort.Strings(names)
	return nil, nil, &AmbiguousMatchError{Target: path, Templates: names}
}

func wildcardSet(p Pattern) map[string]bool {
	out := make(map[string]bool)
	for _, n := range p.Names() {
		out[n] = true
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
