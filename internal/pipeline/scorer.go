package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ScoreBreakdown holds the individual signal contributions and the final
// clamped score.
type ScoreBreakdown struct {
	Industry   float64 `json:"industry"`
	Size       float64 `json:"size"`
	Pains      float64 `json:"pains"`
	Freshness  float64 `json:"freshness"`
	Confidence float64 `json:"confidence"`
	Fresh      int     `json:"fresh"`
	Stale      int     `json:"stale"`
	Final      float64 `json:"final"`
}

// computeFitScore combines the four signals into a score in [0,1].
func computeFitScore(r *model.Record, set Settings, fresh, stale int) ScoreBreakdown {
	w := set.Weights
	c := r.Company
	b := ScoreBreakdown{Fresh: fresh, Stale: stale}

	b.Industry = w.IndustryOther
	for _, ind := range set.HighValueIndustries {
		if strings.EqualFold(strings.TrimSpace(c.Industry), ind) {
			b.Industry = w.IndustryHigh
			break
		}
	}

	switch {
	case c.Size >= 100 && c.Size <= 5000:
		b.Size = w.SizeSweetSpot
	case c.Size > 5000:
		b.Size = w.SizeEnterprise
	default:
		b.Size = w.SizeSmall
	}

	matching := 0
	for _, pain := range c.Pains {
		lp := strings.ToLower(pain)
		for _, kw := range set.PainKeywords {
			if strings.Contains(lp, strings.ToLower(kw)) {
				matching++
				break
			}
		}
	}
	b.Pains = min(w.PainMax, float64(matching)*w.PainEach)

	b.Freshness = min(w.FreshMax, float64(fresh)*w.FreshEach)
	if len(r.Facts) > 0 {
		var sum float64
		for _, f := range r.Facts {
			sum += f.Confidence
		}
		b.Confidence = sum / float64(len(r.Facts)) * w.Confidence
	}

	b.Final = clamp01(b.Industry + b.Size + b.Pains + b.Freshness + b.Confidence)
	return b
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// Scorer rates a record's fit and drops poor or stale prospects.
type Scorer struct {
	set   Settings
	clock clock
}

// NewScorer creates a Scorer.
func NewScorer(set Settings) *Scorer {
	return &Scorer{set: set}
}

// Name implements Stage.
func (s *Scorer) Name() string { return model.StageScorer }

// Run implements Stage. A low score is checked before staleness, so the two
// drop reasons never overlap.
func (s *Scorer) Run(_ context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	fresh, stale := r.FreshStale(s.clock.now())
	b := computeFitScore(r, s.set, fresh, stale)
	r.FitScore = b.Final

	var err error
	switch {
	case b.Final < s.set.MinFitScore:
		err = r.Exit(model.StatusDropped, fmt.Sprintf("Low fit score: %.2f", b.Final))
	case stale > fresh:
		err = r.Exit(model.StatusDropped, fmt.Sprintf("Stale facts: %d/%d", stale, len(r.Facts)))
	default:
		err = r.Advance(model.StatusScored)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"fit_score": b.Final, "breakdown": b}, nil
}
