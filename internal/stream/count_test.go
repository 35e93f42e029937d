package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countToString(t *testing.T, input string) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, CountTokens(context.Background(), strings.NewReader(input), &sb))
	return sb.String()
}

func TestCountTokens(t *testing.T) {
	t.Run("should count whitespace-separated tokens and drop singletons", func(t *testing.T) {
		in := "the cat sat on the mat\nthe cat ran\n"
		out := countToString(t, in)
		// Nine occurrences in total; only "the" and "cat" appear twice or more.
		assert.Equal(t, "__total__\t9\ncat\t2\nthe\t3\n", out)
	})

	t.Run("should drop tokens with no word runes but count them in the total", func(t *testing.T) {
		in := "hey ! hey ! . .\n"
		out := countToString(t, in)
		assert.Equal(t, "__total__\t6\nhey\t2\n", out)
	})

	t.Run("should keep digit and accented tokens", func(t *testing.T) {
		in := "42 42 café café\n"
		out := countToString(t, in)
		assert.Equal(t, "__total__\t4\n42\t2\ncafé\t2\n", out)
	})

	t.Run("should produce an empty table for empty input", func(t *testing.T) {
		assert.Equal(t, "__total__\t0\n", countToString(t, ""))
	})

	t.Run("should treat any whitespace run as one separator", func(t *testing.T) {
		in := "a  a\t\ta\n\na\n"
		out := countToString(t, in)
		assert.Equal(t, "__total__\t4\na\t4\n", out)
	})
}

func TestHasWordRune(t *testing.T) {
	assert.True(t, hasWordRune("word"))
	assert.True(t, hasWordRune("42"))
	assert.True(t, hasWordRune("can't"))
	assert.False(t, hasWordRune("!!!"))
	assert.False(t, hasWordRune("..."))
	assert.False(t, hasWordRune("—"))
}
