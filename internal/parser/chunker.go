// Package parser turns article text into token-bounded blocks.
package parser

import (
	"strings"

	"github.com/raphaelgruber/biocurator-go/internal/tokens"
)

// Budget is the token limit for one submission and the fixed text that
// accompanies every chunk.
type Budget struct {
	// MaxTokens bounds preamble + side prompts + chunk. <= 0 disables chunking.
	MaxTokens int
	// Preamble is the default prompt prepended to every block.
	Preamble string
	// SidePrompts are the questions sent along with every block.
	SidePrompts []string
}

// Compose returns the text submitted for a chunk:
// preamble, the side prompts and the chunk, separated by newlines.
func (b Budget) Compose(chunk string) string {
	return b.Preamble + "\n" + strings.Join(b.SidePrompts, "\n") + "\n" + chunk
}

// Chunk is one ordered block of sentences.
type Chunk struct {
	Text      string
	Position  int
	Sentences int
	Tokens    int // tokens of Text alone
	// Overflow marks a single sentence that exceeds the budget on its own.
	// It is emitted alone rather than dropped.
	Overflow bool
}

// Chunker greedily packs sentences into chunks under a token budget.
type Chunker struct {
	counter   tokens.Counter
	segmenter Segmenter
}

// NewChunker creates a chunker. A nil segmenter uses NewSegmenter().
func NewChunker(counter tokens.Counter, segmenter Segmenter) *Chunker {
	if segmenter == nil {
		segmenter = NewSegmenter()
	}
	return &Chunker{counter: counter, segmenter: segmenter}
}

// Overhead returns the tokens spent on the preamble and side prompts.
func (c *Chunker) Overhead(b Budget) int {
	return c.counter.Count(b.Preamble) + tokens.Sum(c.counter, b.SidePrompts...)
}

// Chunk splits text into chunks in document order. Every chunk satisfies
// Overhead(b) + tokens(chunk) <= b.MaxTokens unless it is flagged Overflow.
// Sentences are never split, dropped, duplicated or reordered. Empty text
// yields no chunks.
func (c *Chunker) Chunk(text string, b Budget) []Chunk {
	sentences := c.segmenter.Split(text)
	if len(sentences) == 0 {
		return nil
	}

	overhead := c.Overhead(b)
	var chunks []Chunk
	var current strings.Builder
	count := 0

	flush := func() {
		body := strings.TrimSpace(current.String())
		n := c.counter.Count(body)
		chunks = append(chunks, Chunk{
			Text:      body,
			Position:  len(chunks),
			Sentences: count,
			Tokens:    n,
			Overflow:  b.MaxTokens > 0 && overhead+n > b.MaxTokens,
		})
		current.Reset()
		count = 0
	}

	for _, sentence := range sentences {
		if count == 0 {
			current.WriteString(sentence)
			count = 1
			continue
		}

		candidate := current.String() + " " + sentence
		if b.MaxTokens <= 0 || overhead+c.counter.Count(candidate) <= b.MaxTokens {
			current.WriteString(" ")
			current.WriteString(sentence)
			count++
			continue
		}

		// Seal the current chunk and seed the next with the overflowing sentence.
		flush()
		current.WriteString(sentence)
		count = 1
	}

	flush()
	return chunks
}
