package recipes

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode"

	"github.com/vk/corpusmill/internal/freqs"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/stream"
)

// openInputs opens every input path for reading. The caller runs the returned
// closer exactly once, whatever happens in between.
func openInputs(paths []string) ([]io.Reader, func(), error) {
	files := make([]*os.File, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("opening input: %w", err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	return readers, closeAll, nil
}

// writeOutput creates path and hands fn a buffered writer, flushing and
// closing behind it. Close errors surface: a short write on a full disk must
// fail the job, not the next one.
func writeOutput(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// streamed adapts a readers-to-writer function to an invocation's resolved
// paths: all inputs opened, the first staged output written.
func streamed(inv rules.Invocation, fn func(rs []io.Reader, w io.Writer) error) error {
	rs, closeInputs, err := openInputs(inv.Inputs)
	if err != nil {
		return err
	}
	defer closeInputs()
	return writeOutput(inv.Outputs[0], func(w io.Writer) error { return fn(rs, w) })
}

func countAction() rules.Action {
	return rules.Native{Name: "count-tokens", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			return stream.CountTokens(ctx, rs[0], w)
		})
	}}
}

func concatAction() rules.Action {
	return rules.Native{Name: "concat", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			return stream.Concat(ctx, w, rs...)
		})
	}}
}

func mergeCountsAction(opts stream.MergeOptions) rules.Action {
	return rules.Native{Name: "merge-counts", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			return stream.MergeCounts(ctx, w, opts, rs...)
		})
	}}
}

func mergeFreqsAction() rules.Action {
	return rules.Native{Name: "merge-freqs", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			return freqs.Merge(ctx, w, rs...)
		})
	}}
}

// foldHanMergeAction folds each input count table to simplified Han and
// merges the folded tables, landing the Hans and Hant variants in one table
// under the canonical code.
func foldHanMergeAction() rules.Action {
	return rules.Native{Name: "fold-han-merge", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			folded := make([]io.Reader, len(rs))
			pipes := make([]*io.PipeReader, len(rs))
			for i, r := range rs {
				pr, pw := io.Pipe()
				go func() {
					pw.CloseWithError(stream.FoldHan(ctx, r, pw))
				}()
				folded[i] = pr
				pipes[i] = pr
			}
			// Closing the read ends unblocks the folders if the merge stops
			// early.
			defer func() {
				for _, pr := range pipes {
					pr.Close()
				}
			}()
			return stream.MergeCounts(ctx, w, stream.MergeOptions{}, folded...)
		})
	}}
}

// partitionCyrillicAction splits one tokenized stream into a Cyrillic output
// and an everything-else output, in that order.
func partitionCyrillicAction() rules.Action {
	return rules.Native{Name: "partition-cyrillic", Run: func(ctx context.Context, inv rules.Invocation) error {
		rs, closeInputs, err := openInputs(inv.Inputs)
		if err != nil {
			return err
		}
		defer closeInputs()

		matched, err := os.Create(inv.Outputs[0])
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer matched.Close()
		rest, err := os.Create(inv.Outputs[1])
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer rest.Close()

		if err := stream.PartitionByScript(ctx, rs[0], matched, rest, unicode.Cyrillic); err != nil {
			return err
		}
		if err := matched.Close(); err != nil {
			return err
		}
		return rest.Close()
	}}
}

func cbpackAction(name string, cutoff int) rules.Action {
	return rules.Native{Name: name, Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			entries, err := freqs.ReadEntries(rs[0])
			if err != nil {
				return err
			}
			return freqs.WriteCBpack(w, entries, cutoff)
		})
	}}
}

func jiebaAction(cutoff int) rules.Action {
	return rules.Native{Name: "export-jieba", Run: func(ctx context.Context, inv rules.Invocation) error {
		return streamed(inv, func(rs []io.Reader, w io.Writer) error {
			entries, err := freqs.ReadEntries(rs[0])
			if err != nil {
				return err
			}
			return freqs.WriteJieba(w, entries, cutoff)
		})
	}}
}

// shuffleAction concatenates the tokenized inputs into a scratch file next to
// the output, then streams a seeded shuffle of it. The seed mixes in the
// language so reruns reproduce and languages differ.
func shuffleAction(seed uint64) rules.Action {
	return rules.Native{Name: "shuffle", Run: func(ctx context.Context, inv rules.Invocation) error {
		scratch, err := os.CreateTemp(filepath.Dir(inv.Outputs[0]), "shuffle-*.txt")
		if err != nil {
			return fmt.Errorf("creating scratch file: %w", err)
		}
		defer os.Remove(scratch.Name())

		rs, closeInputs, err := openInputs(inv.Inputs)
		if err != nil {
			scratch.Close()
			return err
		}
		err = stream.Concat(ctx, scratch, rs...)
		closeInputs()
		if cerr := scratch.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		return writeOutput(inv.Outputs[0], func(w io.Writer) error {
			return stream.ShuffleFile(ctx, scratch.Name(), w, shuffleParts, stream.SeedFor(inv.Wildcards["lang"], seed))
		})
	}}
}
