// Package sources holds the domain tables driving the build: which raw
// corpus sources exist, which languages each declares, how sources combine
// into merge groups, and the per-system language code remappings. The tables
// are embedded YAML selected by profile mode and are read-only after Load.
package sources

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds for the language support predicates. A language needs counts
// from several independent sources before its merged frequencies mean
// anything; large lists need more still.
const (
	SupportedMinSources = 3
	LargeMinSources     = 5
)

// Mode selects which embedded table Load uses.
type Mode string

const (
	ModeFull Mode = "full"
	ModeTest Mode = "test"
)

// ParseMode validates a mode string from the profile.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeTest:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown source table mode %q (want %q or %q)", s, ModeFull, ModeTest)
	}
}

// Spec describes one raw source: its declared languages in declaration order
// and whether it provides full text (tokenizable lines) rather than
// pre-counted tables.
type Spec struct {
	Name      string
	FullText  bool
	Languages []string
}

// Group is a composite source built by merging its members' counts.
type Group struct {
	Name    string
	Members []string
}

// Table is the full source configuration for one mode.
type Table struct {
	specs        []Spec
	specIdx      map[string]int
	groups       []Group
	groupIdx     map[string]int
	countSources []string
	shards       map[string][]string
	remaps       map[string]map[string]string
	exceptions   map[string]int
	largeAllow   map[string]bool
}

//go:embed sources_full.yaml
var fullTableYAML []byte

//go:embed sources_test.yaml
var testTableYAML []byte

// Load builds the Table for the given mode from the embedded configuration.
func Load(mode Mode) (*Table, error) {
	switch mode {
	case ModeFull:
		return Parse(fullTableYAML)
	case ModeTest:
		return Parse(testTableYAML)
	default:
		return nil, fmt.Errorf("unknown source table mode %q", mode)
	}
}

type tableYAML struct {
	Sources []struct {
		Name      string   `yaml:"name"`
		FullText  bool     `yaml:"full_text"`
		Languages []string `yaml:"languages"`
	} `yaml:"sources"`
	MergeGroups []struct {
		Name    string   `yaml:"name"`
		Members []string `yaml:"members"`
	} `yaml:"merge_groups"`
	CountSources      []string                     `yaml:"count_sources"`
	Shards            map[string][]string          `yaml:"shards"`
	CodeRemaps        map[string]map[string]string `yaml:"code_remaps"`
	SupportExceptions map[string]int               `yaml:"support_exceptions"`
	LargeAllowlist    []string                     `yaml:"large_allowlist"`
}

// Parse decodes and validates a source table document.
func Parse(raw []byte) (*Table, error) {
	var doc tableYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing source table: %w", err)
	}

	t := &Table{
		specIdx:    make(map[string]int),
		groupIdx:   make(map[string]int),
		shards:     doc.Shards,
		remaps:     doc.CodeRemaps,
		exceptions: doc.SupportExceptions,
		largeAllow: make(map[string]bool),
	}
	for _, s := range doc.Sources {
		if _, dup := t.specIdx[s.Name]; dup {
			return nil, fmt.Errorf("source %q declared twice", s.Name)
		}
		t.specIdx[s.Name] = len(t.specs)
		t.specs = append(t.specs, Spec{Name: s.Name, FullText: s.FullText, Languages: s.Languages})
	}
	for _, g := range doc.MergeGroups {
		if _, clash := t.specIdx[g.Name]; clash {
			return nil, fmt.Errorf("merge group %q collides with a source name", g.Name)
		}
		if _, dup := t.groupIdx[g.Name]; dup {
			return nil, fmt.Errorf("merge group %q declared twice", g.Name)
		}
		for _, m := range g.Members {
			if _, ok := t.specIdx[m]; !ok {
				return nil, fmt.Errorf("merge group %q member %q is not a declared source", g.Name, m)
			}
		}
		t.groupIdx[g.Name] = len(t.groups)
		t.groups = append(t.groups, Group{Name: g.Name, Members: g.Members})
	}
	for _, cs := range doc.CountSources {
		_, isSource := t.specIdx[cs]
		_, isGroup := t.groupIdx[cs]
		if !isSource && !isGroup {
			return nil, fmt.Errorf("count source %q is neither a source nor a merge group", cs)
		}
	}
	t.countSources = doc.CountSources
	for _, lang := range doc.LargeAllowlist {
		t.largeAllow[lang] = true
	}
	return t, nil
}

// Specs returns the raw sources in declaration order.
func (t *Table) Specs() []Spec { return t.specs }

// Groups returns the merge groups in declaration order.
func (t *Table) Groups() []Group { return t.groups }

// Source looks up one raw source by name.
func (t *Table) Source(name string) (Spec, bool) {
	i, ok := t.specIdx[name]
	if !ok {
		return Spec{}, false
	}
	return t.specs[i], true
}

// Supports reports whether the named source or merge group declares lang. A
// group supports every language any member declares.
func (t *Table) Supports(name, lang string) bool {
	if i, ok := t.groupIdx[name]; ok {
		for _, m := range t.groups[i].Members {
			if t.Supports(m, lang) {
				return true
			}
		}
		return false
	}
	i, ok := t.specIdx[name]
	if !ok {
		return false
	}
	for _, l := range t.specs[i].Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// SourcesForLanguage returns the count-level sources (merge groups count as
// one source) that support lang, in count-source declaration order.
func (t *Table) SourcesForLanguage(lang string) []string {
	var out []string
	for _, cs := range t.countSources {
		if t.Supports(cs, lang) {
			out = append(out, cs)
		}
	}
	return out
}

// CountFilename routes a (source, lang) pair to its count table target. A
// source name containing a slash uses the composite convention
// `counts/<dir>/<base>.<lang>.txt`; plain names use `counts/<name>/<lang>.txt`.
// Downstream consumers parse identity back out of these segments, so the
// convention is load-bearing.
func CountFilename(source, lang string) string {
	if strings.Contains(source, "/") {
		return "counts/" + source + "." + lang + ".txt"
	}
	return "counts/" + source + "/" + lang + ".txt"
}

// CountFilesToMerge returns the count table targets feeding the merged
// frequency list for lang, one per supporting count source, in order.
func (t *Table) CountFilesToMerge(lang string) []string {
	srcs := t.SourcesForLanguage(lang)
	out := make([]string, len(srcs))
	for i, s := range srcs {
		out[i] = CountFilename(s, lang)
	}
	return out
}

// ExpandMergeGroup returns the count targets of the group's members that
// support lang, in member order.
func (t *Table) ExpandMergeGroup(group, lang string) ([]string, error) {
	i, ok := t.groupIdx[group]
	if !ok {
		return nil, fmt.Errorf("unknown merge group %q", group)
	}
	var out []string
	for _, m := range t.groups[i].Members {
		if t.Supports(m, lang) {
			out = append(out, CountFilename(m, lang))
		}
	}
	return out, nil
}

// RemapCode translates an external system's language code to ours,
// defaulting to the identity mapping.
func (t *Table) RemapCode(system, code string) string {
	if m, ok := t.remaps[system]; ok {
		if mapped, ok := m[code]; ok {
			return mapped
		}
	}
	return code
}

// ExternalCode inverts RemapCode: the code the external system uses for one
// of our languages, for building download paths. When several external codes
// collapse onto the same internal one, the lexicographically first wins so
// the answer is stable across runs.
func (t *Table) ExternalCode(system, lang string) string {
	m, ok := t.remaps[system]
	if !ok {
		return lang
	}
	best := ""
	for ext, internal := range m {
		if internal != lang {
			continue
		}
		if best == "" || ext < best {
			best = ext
		}
	}
	if best == "" {
		return lang
	}
	return best
}

// IsSupported reports whether lang has enough independent count sources for
// a merged frequency list. The exceptions table can lower the bar for a
// specific language.
func (t *Table) IsSupported(lang string) bool {
	need := SupportedMinSources
	if exc, ok := t.exceptions[lang]; ok {
		need = exc
	}
	return len(t.SourcesForLanguage(lang)) >= need
}

// IsLarge reports whether lang has enough sources for the large frequency
// list, or is allow-listed regardless of count.
func (t *Table) IsLarge(lang string) bool {
	if t.largeAllow[lang] {
		return true
	}
	return len(t.SourcesForLanguage(lang)) >= LargeMinSources
}

// Languages returns every language any raw source declares, sorted.
func (t *Table) Languages() []string {
	seen := make(map[string]bool)
	for _, s := range t.specs {
		for _, l := range s.Languages {
			seen[l] = true
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// SupportedLanguages returns the sorted languages passing IsSupported.
func (t *Table) SupportedLanguages() []string {
	var out []string
	for _, l := range t.Languages() {
		if t.IsSupported(l) {
			out = append(out, l)
		}
	}
	return out
}

// LargeLanguages returns the sorted supported languages passing IsLarge.
func (t *Table) LargeLanguages() []string {
	var out []string
	for _, l := range t.SupportedLanguages() {
		if t.IsLarge(l) {
			out = append(out, l)
		}
	}
	return out
}

// FullTextSources returns the raw full-text sources declaring lang, in
// declaration order. These are the streams worth shuffling into training
// text.
func (t *Table) FullTextSources(lang string) []string {
	var out []string
	for _, s := range t.specs {
		if s.FullText && t.Supports(s.Name, lang) {
			out = append(out, s.Name)
		}
	}
	return out
}

// Shards returns the shard list for a sharded source, nil when the source is
// not sharded.
func (t *Table) Shards(source string) []string {
	return t.shards[source]
}
