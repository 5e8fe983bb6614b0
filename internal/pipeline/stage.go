// Package pipeline runs prospect records through the stage sequence and
// reports progress as an ordered event stream.
package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Emit publishes an intermediate event for the record a stage is working on.
type Emit func(kind model.EventKind, msg string, payload map[string]any)

// Stage transforms a record and advances its status. Business outcomes
// (drop, block) are statuses; a returned error means the record could not be
// processed. The returned payload is attached to the stage_end event.
type Stage interface {
	Name() string
	Run(ctx context.Context, r *model.Record, emit Emit) (map[string]any, error)
}

// Settings are the tunable stage parameters.
type Settings struct {
	FactTTLHours        int
	HitsPerQuery        int
	TopK                int
	MinFitScore         float64
	HighValueIndustries []string
	PainKeywords        []string
	Weights             config.ScoreWeights
	Temperature         float64
	MaxTokens           int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		FactTTLHours:        168,
		HitsPerQuery:        2,
		TopK:                5,
		MinFitScore:         0.5,
		HighValueIndustries: []string{"SaaS", "FinTech", "E-commerce", "Healthcare Tech"},
		PainKeywords:        []string{"customer retention", "NPS", "support efficiency", "personalization"},
		Weights: config.ScoreWeights{
			IndustryHigh:   0.3,
			IndustryOther:  0.1,
			SizeSweetSpot:  0.2,
			SizeEnterprise: 0.1,
			SizeSmall:      0.05,
			PainEach:       0.1,
			PainMax:        0.3,
			FreshEach:      0.05,
			FreshMax:       0.2,
			Confidence:     0.2,
		},
		Temperature: 0.4,
		MaxTokens:   1024,
	}
}

// SettingsFromConfig extracts stage settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		FactTTLHours:        cfg.Pipeline.FactTTLHours,
		HitsPerQuery:        cfg.Pipeline.HitsPerQuery,
		TopK:                cfg.Retrieval.TopK,
		MinFitScore:         cfg.Pipeline.MinFitScore,
		HighValueIndustries: cfg.Pipeline.HighValueIndustries,
		PainKeywords:        cfg.Pipeline.PainKeywords,
		Weights:             cfg.Pipeline.Weights,
		Temperature:         cfg.Inference.Temperature,
		MaxTokens:           cfg.Inference.MaxTokens,
	}
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
