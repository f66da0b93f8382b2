package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"gopkg.in/yaml.v3"
)

// toolEntry accepts both a bare function definition and the
// {"type": "function", "function": {...}} wrapper.
type toolEntry struct {
	Type        string         `yaml:"type"`
	Function    *toolEntry     `yaml:"function"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// LoadTools reads function tool definitions from a YAML or JSON file.
// An empty path yields no tools.
func LoadTools(path string) ([]assistant.FunctionDefinition, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools: %w", err)
	}
	defs, err := ParseTools(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseTools decodes a list of function definitions.
func ParseTools(data []byte) ([]assistant.FunctionDefinition, error) {
	var entries []toolEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse tools: %w", err)
	}

	defs := make([]assistant.FunctionDefinition, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Function != nil {
			e = *e.Function
		}
		if e.Name == "" {
			return nil, fmt.Errorf("parse tools: entry %d has no name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("parse tools: duplicate tool %q", e.Name)
		}
		seen[e.Name] = true

		def := assistant.FunctionDefinition{Name: e.Name, Description: e.Description}
		if e.Parameters != nil {
			raw, err := json.Marshal(e.Parameters)
			if err != nil {
				return nil, fmt.Errorf("parse tools: %s parameters: %w", e.Name, err)
			}
			def.Parameters = raw
		}
		defs = append(defs, def)
	}
	return defs, nil
}
