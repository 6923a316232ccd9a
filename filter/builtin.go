package filter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charithmadhuranga/fledge/types"
)

func init() {
	Register("scale", newScaleStage)
	Register("exclude", newExcludeStage)
}

// scaleConfig multiplies a named float/integer datapoint by Factor.
type scaleConfig struct {
	Datapoint string  `json:"datapoint"`
	Factor    float64 `json:"factor"`
}

type scaleStage struct {
	cfg scaleConfig
}

func newScaleStage(config json.RawMessage) (Stage, error) {
	var cfg scaleConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	if cfg.Datapoint == "" {
		return nil, fmt.Errorf("scale: datapoint is required")
	}
	if cfg.Factor == 0 {
		cfg.Factor = 1
	}
	return &scaleStage{cfg: cfg}, nil
}

func (s *scaleStage) Name() string { return "scale" }

func (s *scaleStage) Process(_ context.Context, in ReadingSet) (ReadingSet, error) {
	for _, reading := range in {
		for i := range reading.Datapoints {
			dp := &reading.Datapoints[i]
			if dp.Name != s.cfg.Datapoint {
				continue
			}
			switch dp.Value.Kind {
			case types.ValueFloat:
				dp.Value.Float *= s.cfg.Factor
			case types.ValueInteger:
				dp.Value.Float = float64(dp.Value.Int) * s.cfg.Factor
				dp.Value.Kind = types.ValueFloat
			}
		}
	}
	return in, nil
}

// excludeConfig drops readings for the listed asset codes entirely.
type excludeConfig struct {
	AssetCodes []string `json:"assetCodes"`
}

type excludeStage struct {
	excluded map[string]struct{}
}

func newExcludeStage(config json.RawMessage) (Stage, error) {
	var cfg excludeConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	excluded := make(map[string]struct{}, len(cfg.AssetCodes))
	for _, code := range cfg.AssetCodes {
		excluded[code] = struct{}{}
	}
	return &excludeStage{excluded: excluded}, nil
}

func (s *excludeStage) Name() string { return "exclude" }

func (s *excludeStage) Process(_ context.Context, in ReadingSet) (ReadingSet, error) {
	out := make(ReadingSet, 0, len(in))
	for _, reading := range in {
		if _, excluded := s.excluded[reading.AssetCode]; excluded {
			continue
		}
		out = append(out, reading)
	}
	return out, nil
}
