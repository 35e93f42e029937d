// Package rules implements the rule registry: parameterized path templates,
// wildcard matching, and the explicit precedence order that resolves
// legitimately overlapping patterns.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Bindings maps wildcard names to the concrete values one match bound.
type Bindings map[string]string

// Clone returns an independent copy.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

var wildcardName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pattern is a path template with `{name}` wildcards. Each wildcard matches
// one or more non-separator characters, so a wildcard value never spans path
// segments and segment identity survives a round trip through Expand.
type Pattern struct {
	raw   string
	re    *regexp.Regexp
	names []string // one per capture group, repeats allowed
}

// NewPattern compiles a pattern string.
func NewPattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}

	var sb strings.Builder
	sb.WriteString("^")
	var names []string
	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return Pattern{}, fmt.Errorf("pattern %q: unmatched '}'", raw)
			}
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		literal := rest[:open]
		if strings.IndexByte(literal, '}') >= 0 {
			return Pattern{}, fmt.Errorf("pattern %q: unmatched '}'", raw)
		}
		sb.WriteString(regexp.QuoteMeta(literal))

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Pattern{}, fmt.Errorf("pattern %q: unmatched '{'", raw)
		}
		name := rest[open+1 : open+end]
		if !wildcardName.MatchString(name) {
			return Pattern{}, fmt.Errorf("pattern %q: invalid wildcard name %q", raw, name)
		}
		names = append(names, name)
		sb.WriteString(`([^/]+)`)
		rest = rest[open+end+1:]
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, re: re, names: names}, nil
}

// MustPattern is NewPattern for statically known patterns.
func MustPattern(raw string) Pattern {
	p, err := NewPattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern source text.
func (p Pattern) String() string { return p.raw }

// IsLiteral reports whether the pattern has no wildcards.
func (p Pattern) IsLiteral() bool { return len(p.names) == 0 }

// Names returns the distinct wildcard names, in first-appearance order.
func (p Pattern) Names() []string {
	var out []string
	seen := make(map[string]bool, len(p.names))
	for _, n := range p.names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Match binds the pattern's wildcards against a concrete path. A repeated
// wildcard must bind the same value everywhere it appears or the match fails.
func (p Pattern) Match(path string) (Bindings, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	b := make(Bindings, len(p.names))
	for i, name := range p.names {
		v := m[i+1]
		if prev, ok := b[name]; ok && prev != v {
			return nil, false
		}
		b[name] = v
	}
	return b, true
}

// Expand substitutes bound values into the pattern, producing a concrete
// path. Every wildcard must be bound, and no value may contain a path
// separator.
func (p Pattern) Expand(b Bindings) (string, error) {
	var sb strings.Builder
	rest := p.raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		sb.WriteString(rest[:open])
		end := strings.IndexByte(rest[open:], '}')
		name := rest[open+1 : open+end]
		v, ok := b[name]
		if !ok {
			return "", fmt.Errorf("pattern %q: wildcard %q is not bound", p.raw, name)
		}
		if v == "" || strings.Contains(v, "/") {
			return "", fmt.Errorf("pattern %q: invalid value %q for wildcard %q", p.raw, v, name)
		}
		sb.WriteString(v)
		rest = rest[open+end+1:]
	}
}
