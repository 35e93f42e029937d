package cli

import (
	"bufio"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vk/corpusmill/internal/freqs"
	"github.com/vk/corpusmill/internal/stream"
)

// openInputs opens every path, reporting the first failure as a usage error.
func openInputs(paths []string) ([]io.Reader, func(), error) {
	files := make([]*os.File, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, usageErr(err)
		}
		files = append(files, f)
	}
	readers := make([]io.Reader, len(files))
	for i, f := range files {
		readers[i] = f
	}
	return readers, closeAll, nil
}

// writeFile runs fn against a buffered writer on a fresh file. Close errors
// count: a short write on a full disk must not pass silently.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return usageErr(err)
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return jobErr(err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return jobErr(err)
	}
	if err := f.Close(); err != nil {
		return jobErr(err)
	}
	return nil
}

func countCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count IN OUT",
		Short: "Count tokens in a tokenized text file",
		Long: `Count reads one token per line from IN and writes a count table to OUT.
Tokens seen once or carrying no word characters are dropped; the table
header keeps the untrimmed total so merged frequencies stay honest.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ins, closeAll, err := openInputs(args[:1])
			if err != nil {
				return err
			}
			defer closeAll()
			return writeFile(args[1], func(w io.Writer) error {
				return stream.CountTokens(cmd.Context(), ins[0], w)
			})
		},
	}
}

func mergeCountsCommand() *cobra.Command {
	var dropSingletons bool

	cmd := &cobra.Command{
		Use:   "merge-counts OUT IN...",
		Short: "Merge count tables into one, summing totals and counts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ins, closeAll, err := openInputs(args[1:])
			if err != nil {
				return err
			}
			defer closeAll()
			return writeFile(args[0], func(w io.Writer) error {
				opts := stream.MergeOptions{DropSingletons: dropSingletons}
				return stream.MergeCounts(cmd.Context(), w, opts, ins...)
			})
		},
	}

	cmd.Flags().BoolVar(&dropSingletons, "drop-singletons", false, "omit tokens whose summed count is 1")
	return cmd
}

func shuffleCommand() *cobra.Command {
	var (
		parts int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "shuffle IN OUT",
		Short: "Shuffle a text file deterministically in bounded memory",
		Long: `Shuffle splits IN into k near-equal runs of consecutive lines,
shuffles each run in memory and concatenates them into OUT in their
original order. The same seed always produces the same output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return usageErr(err)
			}
			return writeFile(args[1], func(w io.Writer) error {
				return stream.ShuffleFile(cmd.Context(), args[0], w, parts, seed)
			})
		},
	}

	cmd.Flags().IntVarP(&parts, "parts", "k", 10, "number of partitions held in memory one at a time")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "shuffle seed")
	return cmd
}

func freqsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "freqs OUT IN...",
		Short: "Turn count tables into a frequency list",
		Long: `With a single input, freqs divides each count by the table total. With
two or more, it merges them the way the build does: per-source
frequencies are averaged with the extremes trimmed, so no single noisy
source can push a word into the list.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ins, closeAll, err := openInputs(args[1:])
			if err != nil {
				return err
			}
			defer closeAll()
			return writeFile(args[0], func(w io.Writer) error {
				if len(ins) == 1 {
					return freqs.FromCounts(cmd.Context(), w, ins[0])
				}
				return freqs.Merge(cmd.Context(), w, ins...)
			})
		},
	}
}

func cbpackCommand() *cobra.Command {
	var cutoff int

	cmd := &cobra.Command{
		Use:   "cbpack IN OUT",
		Short: "Pack a frequency list into the centibel msgpack format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ins, closeAll, err := openInputs(args[:1])
			if err != nil {
				return err
			}
			defer closeAll()

			entries, err := freqs.ReadEntries(ins[0])
			if err != nil {
				return jobErr(err)
			}
			return writeFile(args[1], func(w io.Writer) error {
				return freqs.WriteCBpack(w, entries, cutoff)
			})
		},
	}

	cmd.Flags().IntVar(&cutoff, "cutoff", 600, "drop entries below -cutoff centibels")
	return cmd
}
