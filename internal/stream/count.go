package stream

import (
	"bufio"
	"context"
	"io"
	"sort"
	"unicode"

	"github.com/vk/corpusmill/internal/countio"
)

// CountTokens turns a whitespace-separated token stream (the tokenizer's
// output) into a count table. The vocabulary is held in memory, which is fine
// at this stage: the raw stream does not fit, the distinct-token map does.
//
// Tokens seen only once and tokens with no letter, digit or mark rune are
// dropped from the table, but the header total counts every occurrence
// including the dropped ones, so downstream frequencies keep an honest
// denominator.
func CountTokens(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), scannerBufSize)
	sc.Split(bufio.ScanWords)

	counts := make(map[string]int64)
	var total int64
	var processed int
	for sc.Scan() {
		if processed++; processed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		counts[sc.Text()]++
		total++
	}
	if err := sc.Err(); err != nil {
		return err
	}

	keys := make([]string, 0, len(counts))
	for tok, c := range counts {
		if c < 2 || !hasWordRune(tok) {
			continue
		}
		keys = append(keys, tok)
	}
	sort.Strings(keys)

	out, err := countio.NewWriter(w, total)
	if err != nil {
		return err
	}
	for _, tok := range keys {
		if err := out.Add(countio.Entry{Token: tok, Count: counts[tok]}); err != nil {
			return err
		}
	}
	return out.Flush()
}

func hasWordRune(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return true
		}
	}
	return false
}
