package recipes

import (
	"fmt"

	"github.com/vk/corpusmill/internal/profile"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/sources"
)

// List depth cutoffs in centibels below a frequency of 1, so 600 keeps
// everything at or above 1e-6.
const (
	smallListCutoff = 600
	largeListCutoff = 800
	jiebaListCutoff = 600
)

// shuffleParts is the run count for the external-memory shuffle. Memory use
// is one part at a time.
const shuffleParts = 10

// exportRules covers the right edge of the graph: merging per-source counts
// into frequency lists and packaging them, plus the shuffled training text
// and embeddings built from it.
func exportRules(tab *sources.Table, prof *profile.Profile) []rules.Decl {
	return []rules.Decl{
		{
			Name:    "freqs",
			Outputs: []string{"freqs/{lang}.txt"},
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				lang := b["lang"]
				if !tab.IsSupported(lang) {
					return nil, fmt.Errorf("language %q has %d independent count sources, not enough for merged frequencies",
						lang, len(tab.SourcesForLanguage(lang)))
				}
				return tab.CountFilesToMerge(lang), nil
			},
			Action:   mergeFreqsAction(),
			Priority: prioExport,
		},
		{
			Name:     "cbpack-small",
			Outputs:  []string{"wordfreq/small_{lang}.msgpack"},
			Inputs:   []string{"freqs/{lang}.txt"},
			Action:   cbpackAction("cbpack-small", smallListCutoff),
			Priority: prioExport,
		},
		{
			Name:    "cbpack-large",
			Outputs: []string{"wordfreq/large_{lang}.msgpack"},
			Inputs:  []string{"freqs/{lang}.txt"},
			// No extra inputs; the dynamic hook only vets that the language
			// has the source depth the large list claims.
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				if !tab.IsLarge(b["lang"]) {
					return nil, fmt.Errorf("language %q does not qualify for the large list", b["lang"])
				}
				return nil, nil
			},
			Action:   cbpackAction("cbpack-large", largeListCutoff),
			Priority: prioExport,
		},
		{
			Name:     "export-jieba",
			Outputs:  []string{"wordfreq/jieba_zh.txt"},
			Inputs:   []string{"freqs/zh.txt"},
			Action:   jiebaAction(jiebaListCutoff),
			Priority: prioExport,
		},
		{
			Name:    "shuffle",
			Outputs: []string{"shuffled/{lang}.txt"},
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				lang := b["lang"]
				srcs := tab.FullTextSources(lang)
				if len(srcs) == 0 {
					return nil, fmt.Errorf("no full-text source declares language %q", lang)
				}
				out := make([]string, len(srcs))
				for i, s := range srcs {
					out[i] = "tokenized/" + s + "/" + lang + ".txt"
				}
				return out, nil
			},
			Action:   shuffleAction(prof.Seed),
			Priority: prioExport,
		},
		{
			Name:    "vectors",
			Outputs: []string{"vectors/{lang}.vec"},
			Inputs:  []string{"shuffled/{lang}.txt"},
			// fastText insists on naming its outputs itself, so the command
			// moves the .vec file onto the staged path afterwards.
			Action: rules.Command{Template: fmt.Sprintf(
				"%s skipgram -input {input1} -output {output} -dim 300 -minCount 5 && mv {output}.vec {output} && rm -f {output}.bin",
				prof.Tools.FastText)},
			Pools:    []string{poolEmbedding},
			Priority: prioExport,
		},
	}
}
