// Package filter implements the ingest filter pipeline: a linear
// sequence of named, independently enable/disable-able transforms over
// a batch of readings, per spec §9's redesign flag ("model as a linear
// sequence of transform capabilities with typed (set) -> set
// signatures, not as raw function pointers with opaque handles").
package filter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charithmadhuranga/fledge/types"
)

// ReadingSet is the unit a Stage transforms: a batch of readings.
type ReadingSet []*types.Reading

// Stage is one pipeline transform. Process may drop, rewrite, or split
// readings; a returned error represents an explicit stage failure
// (the batch is discarded upstream rather than partially applied).
type Stage interface {
	Name() string
	Process(ctx context.Context, in ReadingSet) (ReadingSet, error)
}

// StageConfig is one entry of the filterPipeline config category's
// `stages` array: {name, enabled, config}. Stages aren't categorized by an
// io-direction type and aren't looked up through a dynamic factory
// registry keyed by an arbitrary type string; they're addressed
// directly by the stage name registered in this package.
type StageConfig struct {
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// PipelineConfig is the parsed shape of the filterPipeline category's
// content: {"stages": [...]}.
type PipelineConfig struct {
	Stages []StageConfig `json:"stages"`
}

// ParsePipelineConfig decodes a filterPipeline category document.
func ParsePipelineConfig(content []byte) (PipelineConfig, error) {
	var cfg PipelineConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("parse filter pipeline config: %w", err)
	}
	return cfg, nil
}

// Factory builds a Stage from its raw JSON config.
type Factory func(config json.RawMessage) (Stage, error)

// registry maps a stage name (as it appears in StageConfig.Name) to the
// Factory that builds it. Built-in stages register themselves via
// Register in their own init().
var registry = map[string]Factory{}

// Register adds a stage factory under name. Panics on duplicate
// registration, since that always indicates a programming error caught
// at init time, not a runtime condition.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("filter: stage %q already registered", name))
	}
	registry[name] = factory
}

// Build constructs a Stage by name via the registered Factory.
func Build(name string, config json.RawMessage) (Stage, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("filter: unknown stage %q", name)
	}
	return factory(config)
}
