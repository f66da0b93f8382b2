package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/biocurator-go/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrMissingDefaultPrompt is returned when a prompt file lacks the
// reserved "default" entry.
var ErrMissingDefaultPrompt = errors.New(`prompt file has no "default" prompt`)

// LoadPrompts reads a YAML mapping of prompt name to prompt text, keeping
// file order.
func LoadPrompts(path string) (models.PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.PromptSet{}, fmt.Errorf("read prompts: %w", err)
	}
	ps, err := ParsePrompts(data)
	if err != nil {
		return models.PromptSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// ParsePrompts decodes prompt YAML. The mapping order is the order in
// which prompts are asked.
func ParsePrompts(data []byte) (models.PromptSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return models.PromptSet{}, fmt.Errorf("parse prompts: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return models.PromptSet{}, fmt.Errorf("parse prompts: empty document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return models.PromptSet{}, fmt.Errorf("parse prompts: line %d: expected a mapping of name to text", root.Line)
	}

	entries := make([]models.Prompt, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return models.PromptSet{}, fmt.Errorf("parse prompts: line %d: prompt %q must be text", value.Line, key.Value)
		}
		entries = append(entries, models.Prompt{Name: key.Value, Text: value.Value})
	}

	ps := models.NewPromptSet(entries)
	if _, ok := ps.Preamble(); !ok {
		return models.PromptSet{}, ErrMissingDefaultPrompt
	}
	return ps, nil
}
