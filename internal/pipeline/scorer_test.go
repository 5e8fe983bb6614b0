package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/search"
)

var scoreNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func factAged(age time.Duration, ttl int, conf float64) model.Fact {
	return model.Fact{ID: age.String(), Source: "test", Text: "fact", CollectedAt: scoreNow.Add(-age), TTLHours: ttl, Confidence: conf}
}

func newTestScorer() *Scorer {
	s := NewScorer(DefaultSettings())
	s.clock = fixedClock(scoreNow)
	return s
}

func TestComputeFitScore_SmallSaaS(t *testing.T) {
	r := recordAt(model.Company{ID: "s", Name: "Small", Domain: "small.io", Industry: "SaaS", Size: 50, Pains: []string{"low NPS"}}, model.StatusContacted)

	b := computeFitScore(r, DefaultSettings(), 0, 0)
	assert.InDelta(t, 0.3, b.Industry, 1e-9)
	assert.InDelta(t, 0.05, b.Size, 1e-9)
	assert.InDelta(t, 0.1, b.Pains, 1e-9)
	assert.GreaterOrEqual(t, b.Final, 0.35)
}

func TestComputeFitScore_Bands(t *testing.T) {
	set := DefaultSettings()
	tests := []struct {
		name string
		size int
		want float64
	}{
		{"small", 99, 0.05},
		{"sweet spot low", 100, 0.2},
		{"sweet spot high", 5000, 0.2},
		{"enterprise", 5001, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := recordAt(model.Company{Industry: "Retail", Size: tt.size}, model.StatusContacted)
			b := computeFitScore(r, set, 0, 0)
			assert.InDelta(t, tt.want, b.Size, 1e-9)
			assert.InDelta(t, 0.1, b.Industry, 1e-9)
		})
	}
}

func TestComputeFitScore_CapsAndClamp(t *testing.T) {
	set := DefaultSettings()
	set.Weights.IndustryHigh = 0.9
	r := recordAt(model.Company{
		Industry: "saas",
		Size:     500,
		Pains:    []string{"customer retention", "NPS", "support efficiency", "personalization", "more NPS"},
	}, model.StatusContacted)
	for i := 0; i < 10; i++ {
		r.Facts = append(r.Facts, factAged(time.Hour, 168, 1))
	}

	b := computeFitScore(r, set, 10, 0)
	assert.InDelta(t, 0.3, b.Pains, 1e-9)
	assert.InDelta(t, 0.2, b.Freshness, 1e-9)
	assert.InDelta(t, 0.2, b.Confidence, 1e-9)
	assert.Equal(t, 1.0, b.Final)
}

func TestScorer_LowFitDrops(t *testing.T) {
	r := recordAt(model.Company{ID: "low", Name: "Low", Domain: "low.io", Industry: "Unknown", Size: 10}, model.StatusContacted)

	payload, err := newTestScorer().Run(context.Background(), r, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusDropped, r.Status)
	assert.Contains(t, r.Reason, "Low fit score")
	assert.Equal(t, "Low fit score: 0.15", r.Reason)
	assert.InDelta(t, 0.15, r.FitScore, 1e-9)
	assert.InDelta(t, 0.15, payload["fit_score"], 1e-9)
}

// With default settings a tiny company in an unlisted industry still clears
// the threshold once offline search supplies six fresh facts.
func TestScorer_TinyCompanyWithOfflineFacts(t *testing.T) {
	e := NewEnricher(search.Offline{}, nil, retrieval.NewMemory(), inference.NewHashEmbedder(64), DefaultSettings())
	e.clock = fixedClock(scoreNow)

	r := model.NewRecord("tiny", model.Company{ID: "tiny", Name: "Tiny Shop", Domain: "tiny.shop", Industry: "Unknown", Size: 10})
	_, err := e.Run(context.Background(), r, nil)
	require.NoError(t, err)
	require.Len(t, r.Facts, 6)
	r.Status = model.StatusContacted

	payload, err := newTestScorer().Run(context.Background(), r, nil)
	require.NoError(t, err)

	b := payload["breakdown"].(ScoreBreakdown)
	assert.InDelta(t, 0.2, b.Freshness, 1e-9)
	assert.InDelta(t, 0.16, b.Confidence, 1e-9)
	assert.InDelta(t, 0.51, r.FitScore, 1e-9)
	assert.Equal(t, model.StatusScored, r.Status)
	assert.Empty(t, r.Reason)
}

func TestScorer_StaleFactsDrop(t *testing.T) {
	set := DefaultSettings()
	set.MinFitScore = 0.1
	s := NewScorer(set)
	s.clock = fixedClock(scoreNow)

	r := recordAt(saasCompany(), model.StatusContacted)
	r.Facts = []model.Fact{
		factAged(200*time.Hour, 168, 0.8),
		factAged(300*time.Hour, 168, 0.8),
		factAged(time.Hour, 168, 0.8),
	}

	_, err := s.Run(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDropped, r.Status)
	assert.Equal(t, "Stale facts: 2/3", r.Reason)
}

func TestScorer_Advances(t *testing.T) {
	r := recordAt(saasCompany(), model.StatusContacted)
	r.Facts = []model.Fact{
		factAged(time.Hour, 168, 0.85),
		factAged(2*time.Hour, 168, 0.75),
		factAged(3*time.Hour, 336, 0.9),
	}

	payload, err := newTestScorer().Run(context.Background(), r, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusScored, r.Status)
	assert.Empty(t, r.Reason)
	assert.GreaterOrEqual(t, r.FitScore, 0.0)
	assert.LessOrEqual(t, r.FitScore, 1.0)
	b, ok := payload["breakdown"].(ScoreBreakdown)
	require.True(t, ok)
	assert.Equal(t, 3, b.Fresh)
	assert.Equal(t, 0, b.Stale)
}
