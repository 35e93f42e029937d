package freqs

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// CBpackFormat and CBpackVersion identify the export layout in the header
// map of every cBpack file.
const (
	CBpackFormat  = "cB"
	CBpackVersion = 1
)

// centibels converts a frequency to the centibel scale: 100 * log10(freq),
// rounded. A frequency of 1e-6 is -600 cB.
func centibels(freq float64) int {
	return int(math.Round(100 * math.Log10(freq)))
}

// WriteCBpack encodes a frequency list as a cBpack: a msgpack array whose
// first element is a header map and whose element at index i+1 lists the
// tokens with a centibel value of -i, each tier sorted. The cutoff is the
// positive centibel magnitude where the list ends: entries at or beyond it
// are dropped, so 600 keeps everything louder than one occurrence per
// million.
func WriteCBpack(w io.Writer, entries []Entry, cutoff int) error {
	if cutoff <= 0 {
		return fmt.Errorf("cBpack cutoff must be a positive centibel magnitude, got %d", cutoff)
	}

	var tiers [][]string
	for _, e := range entries {
		if e.Freq <= 0 {
			continue
		}
		cB := centibels(e.Freq)
		if cB > 0 || cB <= -cutoff {
			continue
		}
		idx := -cB
		for len(tiers) <= idx {
			tiers = append(tiers, []string{})
		}
		tiers[idx] = append(tiers[idx], e.Token)
	}
	for _, tier := range tiers {
		sort.Strings(tier)
	}

	doc := make([]any, 0, len(tiers)+1)
	doc = append(doc, map[string]any{
		"format":  CBpackFormat,
		"version": CBpackVersion,
	})
	for _, tier := range tiers {
		doc = append(doc, tier)
	}
	return msgpack.NewEncoder(w).Encode(doc)
}

// WriteJieba writes a frequency list as a jieba dictionary: one
// `token count` line per entry with the frequency scaled to counts per
// billion, descending. The same centibel cutoff as WriteCBpack applies.
func WriteJieba(w io.Writer, entries []Entry, cutoff int) error {
	if cutoff <= 0 {
		return fmt.Errorf("jieba cutoff must be a positive centibel magnitude, got %d", cutoff)
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	for _, e := range entries {
		if e.Freq <= 0 || centibels(e.Freq) <= -cutoff {
			continue
		}
		scaled := int64(math.Round(e.Freq * 1e9))
		if scaled == 0 {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s %d\n", e.Token, scaled); err != nil {
			return err
		}
	}
	return bw.Flush()
}
