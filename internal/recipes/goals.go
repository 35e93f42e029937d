package recipes

import "github.com/vk/corpusmill/internal/sources"

// GoalNames lists the named target bundles ExpandGoals recognizes, for help
// text.
var GoalNames = []string{"freqs", "wordfreq", "embeddings", "all"}

// ExpandGoals replaces goal names with their member targets, leaving anything
// else alone as a concrete target path. Membership follows the source table:
// a goal covers every language whose support tier warrants the artifact.
func ExpandGoals(tab *sources.Table, args []string) []string {
	var out []string
	for _, a := range args {
		switch a {
		case "freqs":
			for _, l := range tab.SupportedLanguages() {
				out = append(out, "freqs/"+l+".txt")
			}
		case "wordfreq":
			for _, l := range tab.SupportedLanguages() {
				out = append(out, "wordfreq/small_"+l+".msgpack")
			}
			for _, l := range tab.LargeLanguages() {
				out = append(out, "wordfreq/large_"+l+".msgpack")
			}
			if tab.IsSupported("zh") {
				out = append(out, "wordfreq/jieba_zh.txt")
			}
		case "embeddings":
			for _, l := range tab.LargeLanguages() {
				out = append(out, "vectors/"+l+".vec")
			}
		case "all":
			out = append(out, ExpandGoals(tab, []string{"freqs", "wordfreq"})...)
		default:
			out = append(out, a)
		}
	}
	return out
}
