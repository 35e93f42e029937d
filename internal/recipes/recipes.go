// Package recipes declares the build rules that wire the corpus pipeline
// together: which upstream archives get downloaded from where, how raw text
// becomes token counts, and how counts become the exported frequency lists.
// The registry built here is pure configuration; resolving it into jobs and
// running them is the dag and executor packages' business.
package recipes

import (
	"github.com/vk/corpusmill/internal/profile"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/sources"
)

// Stage priorities. Deeper stages outrank earlier ones among ready jobs, so
// pipelines already in flight drain before new downloads begin.
const (
	prioDownload = 0
	prioExtract  = 5
	prioTokenize = 10
	prioCount    = 15
	prioExport   = 20
)

// Pool names rules acquire slots from. Capacities come from the profile.
const (
	poolDownload  = "download"
	poolEmbedding = "embedding"
)

// BuildRegistry assembles the full rule set for one source table and profile.
func BuildRegistry(tab *sources.Table, prof *profile.Profile) (*rules.Registry, error) {
	reg := rules.NewRegistry()

	var decls []rules.Decl
	decls = append(decls, acquireRules(tab, prof.Tools)...)
	decls = append(decls, countRules(tab, prof.Tools)...)
	decls = append(decls, exportRules(tab, prof)...)
	for _, d := range decls {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}

	// Specific producers beat the generic stage rules wherever both match a
	// target. Everything else is expected to match exactly one rule.
	precedence := [][2]string{
		{"concat-pt", "tokenize"},
		{"partition-sh", "tokenize"},
		{"fold-zh", "count"},
		{"merge-reddit", "count"},
		{"merge-google-books", "count"},
		{"convert-subtlex", "count"},
		{"convert-jieba", "count"},
		{"convert-mokk", "count"},
	}
	for _, g := range tab.Groups() {
		precedence = append(precedence, [2]string{"merge-" + g.Name, "count"})
	}
	for _, p := range precedence {
		if err := reg.Prefer(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
