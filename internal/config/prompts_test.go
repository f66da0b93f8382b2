package config

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePromptsKeepsOrder(t *testing.T) {
	ps, err := ParsePrompts([]byte(`
zebra: Last alphabetically, first in file.
default: Preamble.
geneCheck: List genes mentioned.
alleles: |
  List alleles.
  One per line.
`))
	require.NoError(t, err)

	preamble, ok := ps.Preamble()
	require.True(t, ok)
	assert.Equal(t, "Preamble.", preamble)

	qs := ps.Questions()
	require.Len(t, qs, 3)
	assert.Equal(t, "zebra", qs[0].Name)
	assert.Equal(t, "geneCheck", qs[1].Name)
	assert.Equal(t, "alleles", qs[2].Name)
	assert.Equal(t, "List alleles.\nOne per line.\n", qs[2].Text)
}

func TestParsePromptsMissingDefault(t *testing.T) {
	_, err := ParsePrompts([]byte("geneCheck: List genes.\n"))
	assert.ErrorIs(t, err, ErrMissingDefaultPrompt)
}

func TestParsePromptsRejectsNonText(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"list at root", "- a\n- b\n"},
		{"nested mapping", "default: x\ngeneCheck:\n  nested: y\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrompts([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadPromptsMissingFile(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseTools(t *testing.T) {
	defs, err := ParseTools([]byte(`
- name: record_genes
  description: Record the genes found.
  parameters:
    type: object
    properties:
      genes:
        type: array
        items: {type: string}
    required: [genes]
- type: function
  function:
    name: triage
    parameters: {type: object}
`))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "record_genes", defs[0].Name)
	assert.Equal(t, "Record the genes found.", defs[0].Description)
	assert.Equal(t, "triage", defs[1].Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(defs[0].Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"genes"}, schema["required"])
}

func TestParseToolsJSON(t *testing.T) {
	defs, err := ParseTools([]byte(`[{"name": "triage", "parameters": {"type": "object"}}]`))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.JSONEq(t, `{"type": "object"}`, string(defs[0].Parameters))
}

func TestParseToolsErrors(t *testing.T) {
	_, err := ParseTools([]byte("- description: nameless\n"))
	assert.Error(t, err)

	_, err = ParseTools([]byte("- name: a\n- name: a\n"))
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadToolsEmptyPath(t *testing.T) {
	defs, err := LoadTools("")
	require.NoError(t, err)
	assert.Nil(t, defs)
}
