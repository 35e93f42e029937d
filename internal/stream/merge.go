// Package stream implements the native aggregation algorithms the build
// pipeline runs in-process: k-way merge-sum over sorted count tables, token
// counting, variant consolidation (concat, Han script folding, script
// partition), and the bounded-memory shuffle. Everything here operates on
// line-oriented streams too large to materialize, except where a vocabulary
// fits in memory and the stage says so.
package stream

import (
	"container/heap"
	"context"
	"fmt"
	"io"

	"github.com/vk/corpusmill/internal/countio"
)

// ctxCheckInterval is how many processed items pass between context checks in
// the tight loops.
const ctxCheckInterval = 8192

// scannerBufSize matches countio's buffer: unsegmented CJK input can put an
// entire document on one line.
const scannerBufSize = 1 << 20

// MergeOptions controls MergeCounts.
type MergeOptions struct {
	// DropSingletons omits every key whose summed count across all inputs is
	// exactly 1. The header total still includes the dropped occurrences, so
	// totals stay additive across merges.
	DropSingletons bool
}

// MergeCounts merges sorted count tables into one: the output is the sorted
// union of keys with counts summed across inputs sharing a key, and the output
// total is the sum of the input totals. It runs as a k-way heap merge, O(total
// lines * log k) time and O(k) memory beyond the stream buffers.
func MergeCounts(ctx context.Context, w io.Writer, opts MergeOptions, inputs ...io.Reader) error {
	if len(inputs) == 0 {
		return fmt.Errorf("merge requires at least one input stream")
	}

	readers := make([]*countio.Reader, len(inputs))
	var total int64
	for i, in := range inputs {
		cr, err := countio.NewReader(in)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		readers[i] = cr
		total += cr.Total()
	}

	out, err := countio.NewWriter(w, total)
	if err != nil {
		return err
	}

	h := make(mergeHeap, 0, len(readers))
	for i, cr := range readers {
		e, err := cr.Next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		h = append(h, mergeItem{entry: e, src: i})
	}
	heap.Init(&h)

	var processed int
	for h.Len() > 0 {
		if processed++; processed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		key := h[0].entry.Token
		var sum int64
		for h.Len() > 0 && h[0].entry.Token == key {
			item := h[0]
			sum += item.entry.Count
			next, err := readers[item.src].Next()
			switch {
			case err == io.EOF:
				heap.Pop(&h)
			case err != nil:
				return fmt.Errorf("input %d: %w", item.src, err)
			default:
				h[0] = mergeItem{entry: next, src: item.src}
				heap.Fix(&h, 0)
			}
		}

		if opts.DropSingletons && sum == 1 {
			continue
		}
		if err := out.Add(countio.Entry{Token: key, Count: sum}); err != nil {
			return err
		}
	}
	return out.Flush()
}

type mergeItem struct {
	entry countio.Entry
	src   int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Token != h[j].entry.Token {
		return h[i].entry.Token < h[j].entry.Token
	}
	return h[i].src < h[j].src
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
