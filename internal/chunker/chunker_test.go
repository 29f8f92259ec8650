package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func words(prefix string, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(out, " ")
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	got := New().Split("  Título: Teste\nAno: 2020\n\n\n  segunda   parte \n")
	require.Equal(t, []string{"Título: Teste Ano: 2020 segunda parte"}, got)
}

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, New().Split(""))
	require.Empty(t, New().Split("\n\n   \n\n"))
}

func TestSplitSeedsOverlapFromFlushedChunk(t *testing.T) {
	t.Parallel()

	c := New(WithMaxTokens(10), WithOverlap(3))
	text := words("a", 6) + "\n\n" + words("b", 4) + "\n\n" + words("c", 5)

	got := c.Split(text)
	require.Equal(t, []string{
		words("a", 6) + " " + words("b", 4),
		"b1 b2 b3 " + words("c", 5),
	}, got)
}

func TestSplitSeedsFullOverlapPastBudget(t *testing.T) {
	t.Parallel()

	c := New(WithMaxTokens(10), WithOverlap(3))
	got := c.Split(words("a", 6) + "\n\n" + words("b", 9))
	require.Equal(t, []string{words("a", 6), "a3 a4 a5 " + words("b", 9)}, got)
	require.Len(t, strings.Fields(got[1]), 12)

	c = New(WithMaxTokens(10), WithOverlap(5))
	got = c.Split(words("a", 8) + "\n\n" + words("b", 8))
	require.Equal(t, []string{words("a", 8), "a3 a4 a5 a6 a7 " + words("b", 8)}, got)
}

func TestSplitOverlapShorterPreviousChunk(t *testing.T) {
	t.Parallel()

	c := New(WithMaxTokens(5), WithOverlap(4))
	got := c.Split("x y\n\n" + words("b", 5))
	require.Equal(t, []string{"x y", "x y " + words("b", 5)}, got)
}

func TestSplitOversizedParagraphUsesWindows(t *testing.T) {
	t.Parallel()

	c := New(WithMaxTokens(4), WithOverlap(1))
	got := c.Split("x y\n\n" + words("w", 10) + "\n\nz")
	require.Equal(t, []string{
		"x y",
		"w0 w1 w2 w3",
		"w3 w4 w5 w6",
		"w6 w7 w8 w9",
		"z",
	}, got)
}

func TestSplitDegenerateOverlapStillTerminates(t *testing.T) {
	t.Parallel()

	c := New(WithMaxTokens(2), WithOverlap(5))
	got := c.Split("a b c")
	require.Equal(t, []string{"a b", "b c"}, got)
}

func TestSplitProperties(t *testing.T) {
	t.Parallel()

	const maxTokens, overlap = 40, 7
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var paras []string
		var all []string
		for p := 0; p < 1+rng.Intn(12); p++ {
			para := words(fmt.Sprintf("r%dp%dw", round, p), 1+rng.Intn(90))
			paras = append(paras, para)
			all = append(all, strings.Fields(para)...)
		}
		chunks := New(WithMaxTokens(maxTokens), WithOverlap(overlap)).Split(strings.Join(paras, "\n\n"))

		seen := make(map[string]bool, len(all))
		var rebuilt []string
		for _, chunk := range chunks {
			tokens := strings.Fields(chunk)
			require.LessOrEqual(t, len(tokens), maxTokens+overlap)
			fresh := false
			for _, tok := range tokens {
				if seen[tok] {
					require.False(t, fresh, "repeated tokens may only form a prefix")
					continue
				}
				fresh = true
				seen[tok] = true
				rebuilt = append(rebuilt, tok)
			}
		}
		require.Equal(t, all, rebuilt)
	}
}

func ExampleChunker_Split() {
	c := New(WithMaxTokens(4), WithOverlap(1))
	for _, chunk := range c.Split("a b c\n\nd e\n\nf g h i j k") {
		fmt.Println(chunk)
	}
	// Output:
	// a b c
	// c d e
	// f g h i
	// i j k
}
