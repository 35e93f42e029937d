package recipes

import (
	"fmt"

	"github.com/vk/corpusmill/internal/profile"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/sources"
	"github.com/vk/corpusmill/internal/stream"
)

// countRules covers the middle of the graph: tokenizing extracted text,
// counting tokens, consolidating regional variants onto canonical codes, and
// merging shard and group tables. Singletons are dropped again when shards
// merge; a token seen once per shard is still probably noise, but a token
// seen once in several shards is not.
func countRules(tab *sources.Table, t profile.Tools) []rules.Decl {
	decls := []rules.Decl{
		{
			Name:     "tokenize",
			Outputs:  []string{"tokenized/{source}/{lang}.txt"},
			Inputs:   []string{"extracted/{source}/{lang}.txt"},
			Action:   rules.Command{Template: fmt.Sprintf("%s tokenize -l {lang} {input1} > {output}", t.XC)},
			Priority: prioTokenize,
		},
		{
			Name:     "count",
			Outputs:  []string{"counts/{source}/{lang}.txt"},
			Inputs:   []string{"tokenized/{source}/{lang}.txt"},
			Action:   countAction(),
			Priority: prioCount,
		},

		// Variant consolidation. The Portuguese variants concatenate, the
		// subtitles Chinese variants fold to simplified and merge, and the
		// twitter sh stream splits on script because the upstream classifier
		// cannot tell Serbian from Croatian by wordlist alone.
		{
			Name:    "concat-pt",
			Outputs: []string{"tokenized/opensubtitles/pt.txt"},
			Inputs: []string{
				"tokenized/opensubtitles/pt-BR.txt",
				"tokenized/opensubtitles/pt-PT.txt",
			},
			Action:   concatAction(),
			Priority: prioTokenize,
		},
		{
			Name:     "partition-sh",
			Outputs:  []string{"tokenized/twitter/sr.txt", "tokenized/twitter/hr.txt"},
			Inputs:   []string{"tokenized/twitter/sh.txt"},
			Action:   partitionCyrillicAction(),
			Priority: prioTokenize,
		},
		{
			Name:    "fold-zh",
			Outputs: []string{"counts/opensubtitles/zh.txt"},
			Inputs: []string{
				"counts/opensubtitles/zh-Hans.txt",
				"counts/opensubtitles/zh-Hant.txt",
			},
			Action:   foldHanMergeAction(),
			Priority: prioCount,
		},

		// Reddit arrives as monthly dumps. Each month runs the normal
		// extract/tokenize/count pipeline under a month subdirectory, then the
		// months merge into the reddit/merged composite table.
		{
			Name:     "tokenize-reddit",
			Outputs:  []string{"tokenized/reddit/{month}/{lang}.txt"},
			Inputs:   []string{"extracted/reddit/{month}/{lang}.txt"},
			Action:   rules.Command{Template: fmt.Sprintf("%s tokenize -l {lang} {input1} > {output}", t.XC)},
			Priority: prioTokenize,
		},
		{
			Name:     "count-reddit",
			Outputs:  []string{"counts/reddit/{month}/{lang}.txt"},
			Inputs:   []string{"tokenized/reddit/{month}/{lang}.txt"},
			Action:   countAction(),
			Priority: prioCount,
		},
		{
			Name:    "merge-reddit",
			Outputs: []string{"counts/reddit/merged.{lang}.txt"},
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				months := tab.Shards("reddit")
				if len(months) == 0 {
					return nil, fmt.Errorf("no reddit months declared in the source table")
				}
				out := make([]string, len(months))
				for i, m := range months {
					out[i] = "counts/reddit/" + m + "/" + b["lang"] + ".txt"
				}
				return out, nil
			},
			Action:   mergeCountsAction(stream.MergeOptions{DropSingletons: true}),
			Priority: prioCount,
		},

		// The Google Books shards are pre-counted 1-grams under the books
		// tokenization, so they convert to our table format first and then
		// recount under our tokenizer before merging.
		{
			Name:     "count-google-books-messy",
			Outputs:  []string{"counts/google-books/messy/{shard}.txt"},
			Inputs:   []string{"downloaded/google-books/{shard}.gz"},
			Action:   rules.Command{Template: fmt.Sprintf("gunzip -c {input1} | %s convert-ngrams > {output}", t.XC)},
			Priority: prioCount,
		},
		{
			Name:     "recount-google-books",
			Outputs:  []string{"counts/google-books/clean/{shard}.txt"},
			Inputs:   []string{"counts/google-books/messy/{shard}.txt"},
			Action:   rules.Command{Template: fmt.Sprintf("%s recount -l en {input1} > {output}", t.XC)},
			Priority: prioCount,
		},
		{
			Name:    "merge-google-books",
			Outputs: []string{"counts/google-books/en.txt"},
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				shards := tab.Shards("google-books")
				if len(shards) == 0 {
					return nil, fmt.Errorf("no google-books shards declared in the source table")
				}
				out := make([]string, len(shards))
				for i, s := range shards {
					out[i] = "counts/google-books/clean/" + s + ".txt"
				}
				return out, nil
			},
			Action:   mergeCountsAction(stream.MergeOptions{DropSingletons: true}),
			Priority: prioCount,
		},

		// Wordlist sources ship their own count formats and convert directly.
		{
			Name:     "convert-subtlex",
			Outputs:  []string{"counts/subtlex/{lang}.txt"},
			Inputs:   []string{"raw/subtlex/{lang}.csv"},
			Action:   rules.Command{Template: fmt.Sprintf("%s convert-subtlex {input1} > {output}", t.XC)},
			Priority: prioCount,
		},
		{
			Name:     "convert-jieba",
			Outputs:  []string{"counts/jieba/zh.txt"},
			Inputs:   []string{"downloaded/jieba/dict.txt.big"},
			Action:   rules.Command{Template: fmt.Sprintf("%s convert-jieba {input1} > {output}", t.XC)},
			Priority: prioCount,
		},
		{
			Name:     "convert-mokk",
			Outputs:  []string{"counts/mokk/hu.txt"},
			Inputs:   []string{"downloaded/mokk/web2.2-freq-sorted.txt"},
			Action:   rules.Command{Template: fmt.Sprintf("%s convert-mokk {input1} > {output}", t.XC)},
			Priority: prioCount,
		},
	}

	for _, g := range tab.Groups() {
		decls = append(decls, mergeGroupRule(tab, g))
	}
	return decls
}

// mergeGroupRule merges the member count tables of one group into its
// composite table. Members that do not declare the language simply do not
// contribute; a language no member declares is a configuration error caught
// at graph build.
func mergeGroupRule(tab *sources.Table, g sources.Group) rules.Decl {
	return rules.Decl{
		Name:    "merge-" + g.Name,
		Outputs: []string{"counts/" + g.Name + "/{lang}.txt"},
		DynamicInputs: func(b rules.Bindings) ([]string, error) {
			inputs, err := tab.ExpandMergeGroup(g.Name, b["lang"])
			if err != nil {
				return nil, err
			}
			if len(inputs) == 0 {
				return nil, fmt.Errorf("no member of merge group %q declares language %q", g.Name, b["lang"])
			}
			return inputs, nil
		},
		Action:   mergeCountsAction(stream.MergeOptions{}),
		Priority: prioCount,
	}
}
