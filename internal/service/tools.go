package service

import (
	"fmt"

	"github.com/raphaelgruber/biocurator-go/internal/assistant"
	"github.com/xeipuuv/gojsonschema"
)

// CompileToolSchemas compiles the parameter schema of every function
// definition, keyed by function name. Definitions without parameters are
// skipped.
func CompileToolSchemas(defs []assistant.FunctionDefinition) (map[string]*gojsonschema.Schema, error) {
	schemas := make(map[string]*gojsonschema.Schema, len(defs))
	for _, d := range defs {
		if len(d.Parameters) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(d.Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile schema for tool %s: %w", d.Name, err)
		}
		schemas[d.Name] = schema
	}
	return schemas, nil
}
