// Package tokens counts tokens under a fixed encoding so that chunk budgets
// match what the remote model is charged.
package tokens

import (
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by the GPT-4 family.
const DefaultEncoding = "cl100k_base"

// Counter returns the token count of a text. Implementations must be
// deterministic and free of side effects.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens with a tiktoken BPE encoding.
type Tiktoken struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// Compile-time check that Tiktoken implements Counter.
var _ Counter = (*Tiktoken)(nil)

// NewTiktoken loads the named encoding. If encoding is empty, uses
// DefaultEncoding. The BPE ranks are downloaded on first use and cached
// under TIKTOKEN_CACHE_DIR.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc, encoding: encoding}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encoding returns the encoding name.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

// Estimate approximates tokens as ceil(utf8 bytes / BytesPerToken).
type Estimate struct {
	BytesPerToken int
}

var _ Counter = Estimate{}

// Count returns the estimated token count. BytesPerToken <= 0 means 4.
func (e Estimate) Count(text string) int {
	bpt := e.BytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + bpt - 1) / bpt
}

// NewCounter returns a tiktoken counter for encoding, or a byte estimate
// when the encoding cannot be loaded (for example without network access
// on first use). The fallback is logged once.
func NewCounter(encoding string, logger *slog.Logger) Counter {
	if logger == nil {
		logger = slog.Default()
	}
	tk, err := NewTiktoken(encoding)
	if err != nil {
		logger.Warn("tiktoken unavailable, using byte estimate", "encoding", encoding, "error", err)
		return Estimate{}
	}
	return tk
}

// Sum returns the total token count of texts.
func Sum(c Counter, texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
