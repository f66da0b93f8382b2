// Package models defines the data structures shared by the curation pipeline.
package models

// DefaultPromptName is the reserved prompt holding the preamble that is
// prepended to every submitted block.
const DefaultPromptName = "default"

// Prompt is a single named question from the prompt file.
type Prompt struct {
	Name string
	Text string
}

// PromptSet is the ordered set of prompts loaded once per run.
// The zero value is an empty set without a preamble.
type PromptSet struct {
	preamble   string
	hasDefault bool
	questions  []Prompt
}

// NewPromptSet builds a PromptSet from entries in file order.
// The entry named "default" becomes the preamble; later duplicates win.
func NewPromptSet(entries []Prompt) PromptSet {
	var ps PromptSet
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.Name == DefaultPromptName {
			ps.preamble = e.Text
			ps.hasDefault = true
			continue
		}
		if i, ok := index[e.Name]; ok {
			ps.questions[i].Text = e.Text
			continue
		}
		index[e.Name] = len(ps.questions)
		ps.questions = append(ps.questions, e)
	}
	return ps
}

// Preamble returns the default prompt text and whether it was defined.
func (ps PromptSet) Preamble() (string, bool) {
	return ps.preamble, ps.hasDefault
}

// Questions returns the section-specific prompts in file order.
func (ps PromptSet) Questions() []Prompt {
	out := make([]Prompt, len(ps.questions))
	copy(out, ps.questions)
	return out
}

// Len returns the number of questions, excluding the preamble.
func (ps PromptSet) Len() int {
	return len(ps.questions)
}

// Lookup returns the text of a named question.
func (ps PromptSet) Lookup(name string) (string, bool) {
	for _, q := range ps.questions {
		if q.Name == name {
			return q.Text, true
		}
	}
	return "", false
}

// Select returns a PromptSet restricted to the given names, keeping the
// preamble. Unknown names and "default" are ignored. Order follows names.
func (ps PromptSet) Select(names []string) PromptSet {
	out := PromptSet{preamble: ps.preamble, hasDefault: ps.hasDefault}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == DefaultPromptName || seen[name] {
			continue
		}
		if text, ok := ps.Lookup(name); ok {
			seen[name] = true
			out.questions = append(out.questions, Prompt{Name: name, Text: text})
		}
	}
	return out
}

// Texts returns the question texts in order.
func (ps PromptSet) Texts() []string {
	texts := make([]string, len(ps.questions))
	for i, q := range ps.questions {
		texts[i] = q.Text
	}
	return texts
}
