package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bench-history/tracker/datafile"
)

//go:embed benchmark_data.schema.json
var benchmarkDataSchema string

var (
	compiled    *gojsonschema.Schema
	compileErr  error
	compileOnce sync.Once
)

// SchemaValidator checks raw documents against the embedded JSON Schema
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator returns a validator backed by the embedded schema
func NewSchemaValidator() (*SchemaValidator, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(benchmarkDataSchema))
	})
	if compileErr != nil {
		return nil, fmt.Errorf("failed to compile benchmark data schema: %w", compileErr)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// ValidateDocument validates a data file in either form. It returns whether
// the document is valid and the schema errors found.
func (v *SchemaValidator) ValidateDocument(raw []byte) (bool, []string, error) {
	body, _, err := datafile.Unwrap(raw)
	if err != nil {
		return false, nil, err
	}
	return v.ValidateJSON(body)
}

// ValidateJSON validates a bare JSON document
func (v *SchemaValidator) ValidateJSON(body []byte) (bool, []string, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, nil, fmt.Errorf("validation error: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	errors := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		errors[i] = e.String()
	}
	return false, errors, nil
}

// Source returns the embedded schema text
func Source() string {
	return benchmarkDataSchema
}
