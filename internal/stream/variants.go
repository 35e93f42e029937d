package stream

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/vk/corpusmill/internal/countio"
)

// Concat writes the lines of each reader to w in argument order. It is the
// consolidation rule for regional variants that share a canonical code and
// need no transformation, like pt-BR and pt-PT.
func Concat(ctx context.Context, w io.Writer, readers ...io.Reader) error {
	bw := bufio.NewWriterSize(w, scannerBufSize)
	var processed int
	for i, r := range readers {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), scannerBufSize)
		for sc.Scan() {
			if processed++; processed%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(sc.Text()); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return bw.Flush()
}

//go:embed han_fold.yaml
var hanFoldYAML []byte

var hanFold struct {
	once  sync.Once
	table map[rune]rune
	err   error
}

func hanFoldTable() (map[rune]rune, error) {
	hanFold.once.Do(func() {
		var raw map[string]string
		if err := yaml.Unmarshal(hanFoldYAML, &raw); err != nil {
			hanFold.err = fmt.Errorf("han fold table: %w", err)
			return
		}
		table := make(map[rune]rune, len(raw))
		for trad, simp := range raw {
			tr, tn := utf8.DecodeRuneInString(trad)
			sr, sn := utf8.DecodeRuneInString(simp)
			if tn != len(trad) || sn != len(simp) {
				hanFold.err = fmt.Errorf("han fold table: %q -> %q is not a single-rune mapping", trad, simp)
				return
			}
			table[tr] = sr
		}
		hanFold.table = table
	})
	return hanFold.table, hanFold.err
}

// FoldHan rewrites a count table's tokens from traditional to simplified Han
// characters and re-aggregates. Folding can collide keys (distinct traditional
// tokens sharing a simplified form) and breaks sort order, so the folded
// vocabulary is held in memory, summed and re-sorted. The total is unchanged:
// folding moves occurrences between keys, it does not add or remove them.
func FoldHan(ctx context.Context, r io.Reader, w io.Writer) error {
	table, err := hanFoldTable()
	if err != nil {
		return err
	}
	cr, err := countio.NewReader(r)
	if err != nil {
		return err
	}

	folded := make(map[string]int64)
	var processed int
	for {
		e, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if processed++; processed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		folded[foldHanString(table, e.Token)] += e.Count
	}

	keys := make([]string, 0, len(folded))
	for tok := range folded {
		keys = append(keys, tok)
	}
	sort.Strings(keys)

	out, err := countio.NewWriter(w, cr.Total())
	if err != nil {
		return err
	}
	for _, tok := range keys {
		if err := out.Add(countio.Entry{Token: tok, Count: folded[tok]}); err != nil {
			return err
		}
	}
	return out.Flush()
}

func foldHanString(table map[rune]rune, s string) string {
	return strings.Map(func(r rune) rune {
		if simp, ok := table[r]; ok {
			return simp
		}
		return r
	}, s)
}

// PartitionByScript splits a line stream by script membership: lines
// containing at least one rune from the given range go to matched, everything
// else to rest. This recovers languages an upstream low-confidence classifier
// merged under one code, like splitting Serbian out of the shared sh stream by
// Cyrillic presence.
func PartitionByScript(ctx context.Context, r io.Reader, matched, rest io.Writer, script *unicode.RangeTable) error {
	mw := bufio.NewWriterSize(matched, scannerBufSize)
	rw := bufio.NewWriterSize(rest, scannerBufSize)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), scannerBufSize)

	var processed int
	for sc.Scan() {
		if processed++; processed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := sc.Text()
		out := rw
		if containsScript(line, script) {
			out = mw
		}
		if _, err := out.WriteString(line); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := mw.Flush(); err != nil {
		return err
	}
	return rw.Flush()
}

func containsScript(s string, script *unicode.RangeTable) bool {
	for _, r := range s {
		if unicode.Is(script, r) {
			return true
		}
	}
	return false
}
