package filter

import (
	"context"
	"fmt"
)

// Pipeline is an ordered, immutable sequence of built stages. A new
// Pipeline is built whenever the filterPipeline config category
// changes; the old one is discarded rather than mutated in place.
type Pipeline struct {
	stages []Stage
}

// BuildPipeline constructs a Pipeline from a parsed PipelineConfig,
// skipping disabled stages entirely (they are not merely no-ops — they
// never appear in the chain).
func BuildPipeline(cfg PipelineConfig) (*Pipeline, error) {
	stages := make([]Stage, 0, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		if !sc.Enabled {
			continue
		}
		stage, err := Build(sc.Name, sc.Config)
		if err != nil {
			return nil, fmt.Errorf("build stage %q: %w", sc.Name, err)
		}
		stages = append(stages, stage)
	}
	return &Pipeline{stages: stages}, nil
}

// IsEmpty reports whether the pipeline has no active stages, in which
// case ingest hands batches directly to storage.
func (p *Pipeline) IsEmpty() bool {
	return p == nil || len(p.stages) == 0
}

// Ingest runs a batch through every stage in order. A stage error
// aborts the remaining stages and is returned to the caller, which per
// spec §4.E counts the whole batch as discarded rather than retrying.
func (p *Pipeline) Ingest(ctx context.Context, batch ReadingSet) (ReadingSet, error) {
	if p == nil {
		return batch, nil
	}
	current := batch
	for _, stage := range p.stages {
		next, err := stage.Process(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("filter stage %q: %w", stage.Name(), err)
		}
		current = next
	}
	return current, nil
}
