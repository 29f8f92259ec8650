// Package chunker splits long documents into overlapping, token-bounded
// retrieval units. A token is a whitespace-separated word; emitted chunks
// re-join their tokens with single spaces.
package chunker

import (
	"regexp"
	"strings"
)

// Defaults used by New when no options are given.
const (
	DefaultMaxTokens     = 800
	DefaultOverlapTokens = 50
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker holds the token budget for each chunk.
type Chunker struct {
	maxTokens int
	overlap   int
}

// Option customises a Chunker.
type Option func(*Chunker)

// WithMaxTokens bounds the number of tokens per chunk.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlap sets how many trailing tokens of a chunk seed the next one.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New returns a Chunker with the defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxTokens: DefaultMaxTokens, overlap: DefaultOverlapTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split cuts text into chunks. Paragraphs (blank-line separated) are packed
// whole into a buffer; when the next paragraph does not fit, the buffer is
// emitted and the new one starts with the previous chunk's trailing overlap
// tokens. The seed is never trimmed, so a seeded chunk may hold up to
// maxTokens+overlap tokens. A paragraph larger than the budget is emitted as
// sliding windows and never seeds an overlap.
func (c *Chunker) Split(text string) []string {
	var (
		chunks []string
		buf    []string
	)
	flush := func() {
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, " "))
		}
		buf = nil
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		tokens := strings.Fields(para)
		switch {
		case len(tokens) == 0:
			continue
		case len(tokens) > c.maxTokens:
			flush()
			chunks = append(chunks, c.windows(tokens)...)
		case len(buf)+len(tokens) <= c.maxTokens:
			buf = append(buf, tokens...)
		default:
			prev := buf
			flush()
			seed := tail(prev, c.overlap)
			buf = make([]string, 0, len(seed)+len(tokens))
			buf = append(buf, seed...)
			buf = append(buf, tokens...)
		}
	}
	flush()
	return chunks
}

func (c *Chunker) windows(tokens []string) []string {
	step := c.maxTokens - c.overlap
	if step < 1 {
		step = 1
	}
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.maxTokens, len(tokens))
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}

func tail(tokens []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(tokens) <= n {
		return tokens
	}
	return tokens[len(tokens)-n:]
}
