package parser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Segmenter splits text into sentences, in order, without empty entries.
type Segmenter interface {
	Split(text string) []string
}

// Punkt segments English text with the Punkt sentence tokenizer. The
// bundled English model is extended with the abbreviations common in
// scientific articles ("Fig.", "et al.", "Eq.") so those do not end a
// sentence.
type Punkt struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

var _ Segmenter = (*Punkt)(nil)

// scientificAbbrevs are lower case and without the trailing period, the
// form Punkt stores abbreviation types in.
var scientificAbbrevs = []string{
	"al", "fig", "figs", "eq", "eqs", "ref", "refs", "approx", "vs",
	"suppl", "tab", "ca", "resp", "cf",
}

// NewPunkt loads the bundled English training data.
func NewPunkt() (*Punkt, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt english model: %w", err)
	}
	for _, abbr := range scientificAbbrevs {
		tok.AbbrevTypes.Add(abbr)
	}
	return &Punkt{tokenizer: tok}, nil
}

// Split returns the trimmed sentences of text.
func (p *Punkt) Split(text string) []string {
	var out []string
	for _, s := range p.tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Simple is a punctuation heuristic: a sentence ends at '.', '!' or '?'
// followed by whitespace or end of text, unless the preceding rune is
// upper case (likely an abbreviation like "Dr.").
type Simple struct{}

var _ Segmenter = Simple{}

// Split returns the trimmed sentences of text.
func (Simple) Split(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NewSegmenter returns the Punkt segmenter, or Simple if its model cannot
// be loaded.
func NewSegmenter() Segmenter {
	p, err := NewPunkt()
	if err != nil {
		return Simple{}
	}
	return p
}

// splitSentences splits text into sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue // likely abbreviation like "Dr."
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
