package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPromptSet(t *testing.T) {
	ps := NewPromptSet([]Prompt{
		{Name: "geneCheck", Text: "List genes mentioned."},
		{Name: "default", Text: "Preamble."},
		{Name: "alleleCheck", Text: "List alleles."},
	})

	pre, ok := ps.Preamble()
	assert.True(t, ok)
	assert.Equal(t, "Preamble.", pre)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, []Prompt{
		{Name: "geneCheck", Text: "List genes mentioned."},
		{Name: "alleleCheck", Text: "List alleles."},
	}, ps.Questions())
	assert.Equal(t, []string{"List genes mentioned.", "List alleles."}, ps.Texts())
}

func TestNewPromptSet_NoDefault(t *testing.T) {
	ps := NewPromptSet([]Prompt{{Name: "q", Text: "Q?"}})
	_, ok := ps.Preamble()
	assert.False(t, ok)
}

func TestNewPromptSet_DuplicateKeepsPosition(t *testing.T) {
	ps := NewPromptSet([]Prompt{
		{Name: "a", Text: "first"},
		{Name: "b", Text: "b"},
		{Name: "a", Text: "second"},
	})
	assert.Equal(t, []Prompt{{Name: "a", Text: "second"}, {Name: "b", Text: "b"}}, ps.Questions())
}

func TestPromptSetSelect(t *testing.T) {
	ps := NewPromptSet([]Prompt{
		{Name: "default", Text: "Pre."},
		{Name: "a", Text: "A"},
		{Name: "b", Text: "B"},
		{Name: "c", Text: "C"},
	})

	sel := ps.Select([]string{"c", "default", "missing", "a", "c"})
	pre, ok := sel.Preamble()
	assert.True(t, ok)
	assert.Equal(t, "Pre.", pre)
	assert.Equal(t, []Prompt{{Name: "c", Text: "C"}, {Name: "a", Text: "A"}}, sel.Questions())

	// Original set is untouched.
	assert.Equal(t, 3, ps.Len())
}

func TestPromptSetQuestionsIsCopy(t *testing.T) {
	ps := NewPromptSet([]Prompt{{Name: "a", Text: "A"}})
	qs := ps.Questions()
	qs[0].Text = "changed"
	text, _ := ps.Lookup("a")
	assert.Equal(t, "A", text)
}

func TestSectionCombinedText(t *testing.T) {
	s := Section{Type: "RESULTS", Passages: []string{"One.", "Two."}}
	assert.Equal(t, "RESULTS\nOne. Two.", s.CombinedText())
	assert.Equal(t, "DISCUSSION\n", Section{Type: "DISCUSSION"}.CombinedText())
}
