package config

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/charithmadhuranga/fledge/errors"
)

// maxCategorySize bounds a single category document, guarding the KV watch
// loop against a misbehaving writer pushing an unbounded blob.
const maxCategorySize = 256 * 1024

// categorySchemas holds the JSON Schema text for each category. Kept as
// plain string literals rather than embedded files: the schemas are small,
// stable, and reviewing them alongside the manager that enforces them is
// more useful than indirection through an asset loader.
var categorySchemas = map[Category]string{
	CategoryFilterPipeline: `{
		"type": "object",
		"required": ["stages"],
		"properties": {
			"stages": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "enabled"],
					"properties": {
						"name":    {"type": "string", "minLength": 1},
						"enabled": {"type": "boolean"},
						"config":  {"type": "object"}
					}
				}
			}
		}
	}`,
	CategoryStorage: `{
		"type": "object",
		"properties": {
			"connectionString":     {"type": "string"},
			"maxConnections":       {"type": "integer", "minimum": 1},
			"purgeAgeHours":        {"type": "integer", "minimum": 0},
			"purgeRetainUnsent":    {"type": "boolean"},
			"connectFailLogWindow": {"type": "string"}
		}
	}`,
	CategoryPerfmon: `{
		"type": "object",
		"properties": {
			"collecting":     {"type": "boolean"},
			"flushInterval":  {"type": "string"},
			"counters": {
				"type": "array",
				"items": {"type": "string"}
			}
		}
	}`,
}

// validatorCache lazily compiles each category's schema once and reuses it,
// since gojsonschema.NewSchema does non-trivial parsing work.
var validatorCache sync.Map // Category -> *gojsonschema.Schema

func schemaFor(category Category) (*gojsonschema.Schema, error) {
	if cached, ok := validatorCache.Load(category); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	raw, ok := categorySchemas[category]
	if !ok {
		return nil, fmt.Errorf("no schema registered for category %q", category)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", category, err)
	}

	actual, _ := validatorCache.LoadOrStore(category, schema)
	return actual.(*gojsonschema.Schema), nil
}

// ValidateCategory checks content against the JSON Schema registered for
// category, returning a *errors.SchemaError listing every violation when
// it fails.
func ValidateCategory(category Category, content []byte) error {
	if len(content) > maxCategorySize {
		return errors.NewConfigError(string(category),
			fmt.Errorf("content too large: %d bytes > %d", len(content), maxCategorySize))
	}

	schema, err := schemaFor(category)
	if err != nil {
		return errors.NewConfigError(string(category), err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return errors.NewConfigError(string(category), fmt.Errorf("validate: %w", err))
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return errors.NewSchemaError(fmt.Sprintf("category %s", category), reasons)
	}

	return nil
}
