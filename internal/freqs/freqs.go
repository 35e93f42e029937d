// Package freqs turns count tables into frequency lists and exports them in
// the formats downstream consumers expect. Frequencies are word probabilities
// in [0, 1]; lists are ordered by descending frequency and truncated below a
// noise floor.
package freqs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/corpusmill/internal/countio"
)

// MinFreq is the noise floor: entries below it carry more sampling error than
// signal and are dropped from every list.
const MinFreq = 1e-9

// MergeMass is the probability mass assigned to the merged list; the
// remainder is reserved for words the corpus never saw.
const MergeMass = 0.99

// Entry is one token with its estimated frequency.
type Entry struct {
	Token string
	Freq  float64
}

// FromCounts converts a single count table into a frequency list: each
// token's count divided by the table's total, descending by frequency.
func FromCounts(ctx context.Context, w io.Writer, r io.Reader) error {
	cr, err := countio.NewReader(r)
	if err != nil {
		return err
	}
	total := cr.Total()

	var entries []Entry
	for {
		e, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if total == 0 {
			continue
		}
		freq := float64(e.Count) / float64(total)
		if freq < MinFreq {
			continue
		}
		entries = append(entries, Entry{Token: e.Token, Freq: freq})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sortByFreq(entries)
	return WriteEntries(w, entries)
}

// Merge combines count tables from independent sources into one frequency
// list using a trimmed mean: each token's per-source frequency vector is
// padded with zeros for sources that missed it, the single highest and lowest
// values are discarded, and the rest are averaged. A token seen by only one
// source therefore averages to zero and disappears, which is the point: one
// noisy source cannot push a word into the list. Surviving mass is normalized
// to MergeMass.
//
// With only two inputs there is nothing left after a trim, so the two values
// are averaged untrimmed. That keeps languages grandfathered in below the
// usual source threshold buildable.
func Merge(ctx context.Context, w io.Writer, inputs ...io.Reader) error {
	if len(inputs) < 2 {
		return fmt.Errorf("frequency merge requires at least 2 inputs, got %d", len(inputs))
	}

	perToken := make(map[string][]float64)
	for i, in := range inputs {
		cr, err := countio.NewReader(in)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		total := cr.Total()
		for {
			e, err := cr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			if total == 0 {
				continue
			}
			vec, ok := perToken[e.Token]
			if !ok {
				vec = make([]float64, len(inputs))
				perToken[e.Token] = vec
			}
			vec[i] = float64(e.Count) / float64(total)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	entries := make([]Entry, 0, len(perToken))
	var mass float64
	for tok, vec := range perToken {
		avg := trimmedMean(vec)
		if avg <= 0 {
			continue
		}
		entries = append(entries, Entry{Token: tok, Freq: avg})
		mass += avg
	}

	if mass > 0 {
		scale := MergeMass / mass
		kept := entries[:0]
		for _, e := range entries {
			e.Freq *= scale
			if e.Freq < MinFreq {
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}

	sortByFreq(entries)
	return WriteEntries(w, entries)
}

// trimmedMean drops one minimum and one maximum, then averages the rest.
// Vectors too short to trim are averaged as they are.
func trimmedMean(vec []float64) float64 {
	if len(vec) < 3 {
		var sum float64
		for _, v := range vec {
			sum += v
		}
		return sum / float64(len(vec))
	}

	sorted := append([]float64(nil), vec...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted[1 : len(sorted)-1] {
		sum += v
	}
	return sum / float64(len(sorted)-2)
}

func sortByFreq(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Freq != entries[j].Freq {
			return entries[i].Freq > entries[j].Freq
		}
		return entries[i].Token < entries[j].Token
	})
}

// WriteEntries writes a frequency list as token\tfreq lines, frequencies at
// five significant digits.
func WriteEntries(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", e.Token, strconv.FormatFloat(e.Freq, 'g', 5, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadEntries parses a frequency list written by WriteEntries.
func ReadEntries(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var entries []Entry
	line := 0
	for sc.Scan() {
		line++
		tok, strfreq, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: malformed frequency line %q", line, sc.Text())
		}
		freq, err := strconv.ParseFloat(strfreq, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, Entry{Token: tok, Freq: freq})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
