package recipes

import (
	"fmt"

	"github.com/vk/corpusmill/internal/profile"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/sources"
)

// Upstream endpoints. {code}, {lang}, {month} and {shard} are rule wildcards
// substituted from the matched output path before the shell sees the command.
const (
	opensubtitlesURL = "https://object.pouta.csc.fi/OPUS-OpenSubtitles/v2018/mono/OpenSubtitles.raw.{code}.gz"
	wikipediaURL     = "https://dumps.wikimedia.org/{lang}wiki/latest/{lang}wiki-latest-pages-articles.xml.bz2"
	newscrawlURL     = "https://data.statmt.org/news-crawl/archives/news-2014.tgz"
	globalvoicesURL  = "https://object.pouta.csc.fi/OPUS-GlobalVoices/v2017q3/mono/GlobalVoices.raw.{lang}.gz"
	redditURL        = "https://files.pushshift.io/reddit/comments/RC_{month}.zst"
	googleBooksURL   = "http://storage.googleapis.com/books/ngrams/books/googlebooks-eng-all-1gram-20120701-{shard}.gz"
	jiebaURL         = "https://raw.githubusercontent.com/fxsjy/jieba/master/extra_dict/dict.txt.big"
	mokkURL          = "https://mokk.bme.hu/resources/webcorpus/web2.2-freq-sorted.txt"
)

// curlTo builds the fetch command for one endpoint. The output runs through
// the same staging as every other rule, so a dropped connection never leaves
// a truncated archive under downloaded/.
func curlTo(curl, url string) rules.Action {
	return rules.Command{Template: fmt.Sprintf("%s -sSL --fail --retry 3 -o {output} '%s'", curl, url)}
}

// acquireRules covers the left edge of the graph: fetching upstream archives
// and unpacking them into line text under extracted/. Sources with no stable
// public endpoint (twitter, voa, subtlex) start from files dropped under raw/
// by hand; a missing drop fails only its own branch, at execution time.
//
// Download targets are named by the code the upstream system uses, so the
// fetch commands need no translation. The extract rules map our canonical
// language codes back to those external names.
func acquireRules(tab *sources.Table, t profile.Tools) []rules.Decl {
	return []rules.Decl{
		{
			Name:     "download-opensubtitles",
			Outputs:  []string{"downloaded/opensubtitles/{code}.txt.gz"},
			Action:   curlTo(t.Curl, opensubtitlesURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-wikipedia",
			Outputs:  []string{"downloaded/wikipedia/{lang}.xml.bz2"},
			Action:   curlTo(t.Curl, wikipediaURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-newscrawl",
			Outputs:  []string{"downloaded/newscrawl/news-2014.tgz"},
			Action:   curlTo(t.Curl, newscrawlURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-globalvoices",
			Outputs:  []string{"downloaded/globalvoices/{lang}.txt.gz"},
			Action:   curlTo(t.Curl, globalvoicesURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-reddit",
			Outputs:  []string{"downloaded/reddit/{month}.zst"},
			Action:   curlTo(t.Curl, redditURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-google-books",
			Outputs:  []string{"downloaded/google-books/{shard}.gz"},
			Action:   curlTo(t.Curl, googleBooksURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-jieba",
			Outputs:  []string{"downloaded/jieba/dict.txt.big"},
			Action:   curlTo(t.Curl, jiebaURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},
		{
			Name:     "download-mokk",
			Outputs:  []string{"downloaded/mokk/web2.2-freq-sorted.txt"},
			Action:   curlTo(t.Curl, mokkURL),
			Pools:    []string{poolDownload},
			Priority: prioDownload,
		},

		{
			Name:    "extract-opensubtitles",
			Outputs: []string{"extracted/opensubtitles/{lang}.txt"},
			DynamicInputs: func(b rules.Bindings) ([]string, error) {
				code := tab.ExternalCode("opensubtitles", b["lang"])
				return []string{"downloaded/opensubtitles/" + code + ".txt.gz"}, nil
			},
			Action:   rules.Command{Template: "gunzip -c {input1} > {output}"},
			Priority: prioExtract,
		},
		{
			Name:     "extract-wikipedia",
			Outputs:  []string{"extracted/wikipedia/{lang}.txt"},
			Inputs:   []string{"downloaded/wikipedia/{lang}.xml.bz2"},
			Action:   rules.Command{Template: fmt.Sprintf("bunzip2 -c {input1} | %s > {output}", t.Wiki2Text)},
			Priority: prioExtract,
		},
		{
			Name:     "extract-newscrawl",
			Outputs:  []string{"extracted/newscrawl/{lang}.txt"},
			Inputs:   []string{"downloaded/newscrawl/news-2014.tgz"},
			Action:   rules.Command{Template: "tar -xzOf {input1} news-2014/news.2014.{lang}.shuffled > {output}"},
			Priority: prioExtract,
		},
		{
			Name:     "extract-globalvoices",
			Outputs:  []string{"extracted/globalvoices/{lang}.txt"},
			Inputs:   []string{"downloaded/globalvoices/{lang}.txt.gz"},
			Action:   rules.Command{Template: "gunzip -c {input1} > {output}"},
			Priority: prioExtract,
		},
		{
			Name:     "extract-voa",
			Outputs:  []string{"extracted/voa/{lang}.txt"},
			Inputs:   []string{"raw/voa/{lang}.txt.gz"},
			Action:   rules.Command{Template: "gunzip -c {input1} > {output}"},
			Priority: prioExtract,
		},
		{
			Name:     "extract-twitter",
			Outputs:  []string{"extracted/twitter/{lang}.txt"},
			Inputs:   []string{"raw/twitter/tweets-2014.txt.gz"},
			Action:   rules.Command{Template: fmt.Sprintf("gunzip -c {input1} | %s select-language -l {lang} -s cld2 > {output}", t.XC)},
			Priority: prioExtract,
		},
		{
			Name:     "extract-reddit",
			Outputs:  []string{"extracted/reddit/{month}/{lang}.txt"},
			Inputs:   []string{"downloaded/reddit/{month}.zst"},
			Action:   rules.Command{Template: fmt.Sprintf("%s extract-reddit -l {lang} -s cld2 {input1} > {output}", t.XC)},
			Priority: prioExtract,
		},
	}
}
