package query

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema bounds the shapes Parse will accept before the recursive
// UnmarshalJSON logic ever runs, rejecting payloads with the wrong
// top-level types (e.g. "where" as a string, "limit" as an array) with a
// structural error instead of a confusing unmarshal failure.
const payloadSchema = `{
	"type": "object",
	"properties": {
		"where":      {"type": "object"},
		"aggregate":  {"type": ["object", "array"]},
		"return":     {"type": "array"},
		"modifier":   {"type": "string"},
		"group":      {"type": ["object", "string"]},
		"sort":       {"type": ["object", "array"]},
		"timebucket": {"type": "object"},
		"limit":      {"type": "integer", "minimum": 0},
		"skip":       {"type": "integer", "minimum": 0}
	}
}`

var payloadValidator = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
})

// validateStructure checks data against payloadSchema, the same
// structural-validation-before-compile pattern the config package uses
// for its category documents.
func validateStructure(data []byte) error {
	schema, err := payloadValidator()
	if err != nil {
		return fmt.Errorf("compile query payload schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate query payload: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return fmt.Errorf("invalid query payload: %v", reasons)
	}
	return nil
}
