package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// shuffleParallelism bounds how many partitions are shuffled concurrently.
// Memory use is roughly (shuffleParallelism + 2) partitions at once: one being
// read, the ones in flight, one waiting to be written.
const shuffleParallelism = 2

// SeedFor derives a stable shuffle seed from a name (typically the output
// target path) and a base seed from the profile. Same name and base, same
// permutation.
func SeedFor(name string, base uint64) uint64 {
	return base ^ xxhash.Sum64String(name)
}

// ShuffleFile writes an approximate shuffle of the lines of path to w. The
// input is split into k near-equal contiguous partitions, each partition is
// permuted uniformly in memory, and partitions are concatenated in their
// original order. The result is uniform within each partition but not
// globally, which is the accepted trade for never materializing the whole
// file; k=1 degenerates to a full uniform permutation. Two sequential passes:
// one to count lines, one to read, shuffle and write.
func ShuffleFile(ctx context.Context, path string, w io.Writer, k int, seed uint64) error {
	if k < 1 {
		return fmt.Errorf("shuffle partition count must be at least 1, got %d", k)
	}

	n, err := countLines(path)
	if err != nil {
		return err
	}
	sizes := partitionSizes(n, k)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), scannerBufSize)

	g, gctx := errgroup.WithContext(ctx)

	type part struct {
		idx   int
		lines []string
	}
	work := make(chan part)
	done := make([]chan []string, len(sizes))
	for i := range done {
		done[i] = make(chan []string, 1)
	}

	g.Go(func() error {
		defer close(work)
		for i, size := range sizes {
			lines := make([]string, 0, size)
			for len(lines) < size && sc.Scan() {
				lines = append(lines, sc.Text())
			}
			if err := sc.Err(); err != nil {
				return err
			}
			if len(lines) < size {
				return fmt.Errorf("%s shrank while shuffling: expected %d more lines", path, size-len(lines))
			}
			select {
			case work <- part{idx: i, lines: lines}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range shuffleParallelism {
		g.Go(func() error {
			for p := range work {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				rng := rand.New(rand.NewPCG(seed, uint64(p.idx)))
				rng.Shuffle(len(p.lines), func(a, b int) {
					p.lines[a], p.lines[b] = p.lines[b], p.lines[a]
				})
				done[p.idx] <- p.lines
			}
			return nil
		})
	}

	g.Go(func() error {
		bw := bufio.NewWriterSize(w, scannerBufSize)
		for i := range done {
			var lines []string
			select {
			case lines = <-done[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			for _, line := range lines {
				if _, err := bw.WriteString(line); err != nil {
					return err
				}
				if err := bw.WriteByte('\n'); err != nil {
					return err
				}
			}
		}
		return bw.Flush()
	})

	return g.Wait()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int
	buf := make([]byte, scannerBufSize)
	endedWithNewline := true
	for {
		read, err := f.Read(buf)
		for _, b := range buf[:read] {
			if b == '\n' {
				n++
			}
		}
		if read > 0 {
			endedWithNewline = buf[read-1] == '\n'
		}
		if err == io.EOF {
			if !endedWithNewline {
				n++
			}
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// partitionSizes splits n lines into k contiguous partitions whose sizes
// differ by at most one, larger partitions first.
func partitionSizes(n, k int) []int {
	sizes := make([]int, k)
	base, rem := n/k, n%k
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}
