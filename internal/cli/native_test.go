package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errW bytes.Buffer
	err := Execute(context.Background(), &out, &errW, args)
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCountCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.txt", "the cat the cat the\n")
	out := filepath.Join(dir, "counts.txt")

	t.Run("should write a count table with the untrimmed total", func(t *testing.T) {
		_, err := runCLI(t, "count", in, out)
		require.NoError(t, err)
		assert.Equal(t, "__total__\t5\ncat\t2\nthe\t3\n", readBack(t, out))
	})

	t.Run("should treat a missing input as a usage error", func(t *testing.T) {
		_, err := runCLI(t, "count", filepath.Join(dir, "absent.txt"), out)
		assert.Equal(t, 2, exitCode(t, err))
	})
}

func TestMergeCountsCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.txt", "__total__\t5\ncat\t2\nthe\t3\n")
	b := writeFixture(t, dir, "b.txt", "__total__\t4\nthe\t3\nzebra\t1\n")
	out := filepath.Join(dir, "merged.txt")

	t.Run("should sum totals and per-token counts", func(t *testing.T) {
		_, err := runCLI(t, "merge-counts", out, a, b)
		require.NoError(t, err)
		assert.Equal(t, "__total__\t9\ncat\t2\nthe\t6\nzebra\t1\n", readBack(t, out))
	})

	t.Run("should drop singletons when asked", func(t *testing.T) {
		_, err := runCLI(t, "merge-counts", "--drop-singletons", out, a, b)
		require.NoError(t, err)
		assert.Equal(t, "__total__\t9\ncat\t2\nthe\t6\n", readBack(t, out))
	})

	t.Run("should fail on a malformed table", func(t *testing.T) {
		broken := writeFixture(t, dir, "broken.txt", "no header here\n")
		_, err := runCLI(t, "merge-counts", out, a, broken)
		assert.Equal(t, 1, exitCode(t, err))
	})
}

func TestShuffleCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "lines.txt", "alpha\nbravo\ncharlie\ndelta\necho\nfoxtrot\n")
	out1 := filepath.Join(dir, "out1.txt")
	out2 := filepath.Join(dir, "out2.txt")

	t.Run("should be deterministic for a fixed seed", func(t *testing.T) {
		_, err := runCLI(t, "shuffle", in, out1, "-k", "2", "--seed", "7")
		require.NoError(t, err)
		_, err = runCLI(t, "shuffle", in, out2, "-k", "2", "--seed", "7")
		require.NoError(t, err)

		first := readBack(t, out1)
		assert.Equal(t, first, readBack(t, out2))
		assert.ElementsMatch(t,
			[]string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"},
			strings.Split(strings.TrimSuffix(first, "\n"), "\n"))
	})

	t.Run("should treat a missing input as a usage error", func(t *testing.T) {
		_, err := runCLI(t, "shuffle", filepath.Join(dir, "absent.txt"), out1)
		assert.Equal(t, 2, exitCode(t, err))
	})
}

func TestFreqsCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "freqs.txt")

	t.Run("should convert a single table by dividing through the total", func(t *testing.T) {
		in := writeFixture(t, dir, "single.txt", "__total__\t5\ncat\t2\nthe\t3\n")
		_, err := runCLI(t, "freqs", out, in)
		require.NoError(t, err)
		assert.Equal(t, "the\t0.6\ncat\t0.4\n", readBack(t, out))
	})

	t.Run("should merge two tables with an untrimmed average", func(t *testing.T) {
		a := writeFixture(t, dir, "ma.txt", "__total__\t10\ndog\t4\nthe\t6\n")
		b := writeFixture(t, dir, "mb.txt", "__total__\t10\ncat\t4\nthe\t6\n")
		_, err := runCLI(t, "freqs", out, a, b)
		require.NoError(t, err)
		assert.Equal(t, "the\t0.594\ncat\t0.198\ndog\t0.198\n", readBack(t, out))
	})
}

func TestCbpackCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "freqs.txt", "the\t0.1\nof\t0.05\n")
	out := filepath.Join(dir, "small.msgpack")

	_, err := runCLI(t, "cbpack", in, out, "--cutoff", "600")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc []any
	require.NoError(t, msgpack.Unmarshal(data, &doc))

	// Header plus tiers 0..-130: 0.1 is -100 cB, 0.05 is -130 cB.
	require.Len(t, doc, 132)
	header, ok := doc[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cB", header["format"])
	assert.Equal(t, []any{"the"}, doc[101])
	assert.Equal(t, []any{"of"}, doc[131])
}
