package integration_tests

import (
	"testing"

	"github.com/vk/corpusmill/internal/testutil"
)

// Count tables feeding the English frequency merge in test mode: the
// subtitles group, wikipedia, and news. `the` and `cat` appear in all three
// sources; every other token is claimed by a single source, so the trimmed
// mean keeps exactly two tokens.
const (
	subtitlesCounts = "__total__\t10\ncat\t3\ndog\t2\nthe\t5\n"
	wikipediaCounts = "__total__\t10\ncat\t3\nthe\t5\nwiki\t2\n"
	newsCounts      = "__total__\t10\ncat\t3\nnews\t2\nthe\t5\n"
)

// Expected merged frequencies: `the` and `cat` average to 0.5 and 0.3, the
// single-source tokens trim to zero, and the surviving 0.8 of mass rescales
// to the 0.99 merge budget.
const (
	mergedTheFreq = 0.61875
	mergedCatFreq = 0.37125
)

// seedEnglishChain writes every artifact of the English test-mode pipeline
// except the merged frequency list, stage by stage with ascending mtimes. A
// build of freqs/en.txt over this tree finds the entire upstream chain fresh
// and only the final merge left to run. Extra stages land on top with later
// mtimes still.
func seedEnglishChain(t *testing.T, root string, extra ...map[string]string) {
	t.Helper()
	stages := []map[string]string{
		{
			"raw/subtlex/en.csv":                 "Word,FREQcount\nthe,2\n",
			"downloaded/opensubtitles/en.txt.gz": "archive bytes",
			"downloaded/wikipedia/en.xml.bz2":    "archive bytes",
			"downloaded/newscrawl/news-2014.tgz": "archive bytes",
		},
		{
			"extracted/opensubtitles/en.txt": "the cat sat\n",
			"extracted/wikipedia/en.txt":     "the cat sat\n",
			"extracted/newscrawl/en.txt":     "the cat sat\n",
		},
		{
			"tokenized/opensubtitles/en.txt": "the cat sat\n",
			"tokenized/wikipedia/en.txt":     "the cat sat\n",
			"tokenized/newscrawl/en.txt":     "the cat sat\n",
		},
		{
			"counts/opensubtitles/en.txt": "__total__\t6\ncat\t2\nthe\t4\n",
			"counts/subtlex/en.txt":       "__total__\t4\ndog\t2\nthe\t2\n",
			"counts/wikipedia/en.txt":     wikipediaCounts,
			"counts/newscrawl/en.txt":     "__total__\t5\nnews\t2\nthe\t3\n",
		},
		{
			"counts/subtitles/en.txt": subtitlesCounts,
			"counts/news/en.txt":      newsCounts,
		},
	}
	stages = append(stages, extra...)
	testutil.SeedTree(t, root, stages...)
}
