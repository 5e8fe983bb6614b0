package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/search"
)

// SourceSeedData marks facts synthesized from seed pain points.
const SourceSeedData = "seed_data"

const seedConfidence = 0.9

// Enricher gathers facts about a company from web search and its seed data,
// and indexes the live facts for retrieval.
type Enricher struct {
	search   search.Searcher
	fetcher  search.Fetcher
	index    retrieval.Backend
	embedder inference.Embedder
	set      Settings
	clock    clock
}

// NewEnricher creates an Enricher. fetcher may be nil; when set, the
// company homepage is read as one more fact.
func NewEnricher(s search.Searcher, fetcher search.Fetcher, index retrieval.Backend, emb inference.Embedder, set Settings) *Enricher {
	return &Enricher{search: s, fetcher: fetcher, index: index, embedder: emb, set: set}
}

// Name implements Stage.
func (e *Enricher) Name() string { return model.StageEnricher }

func topicQueries(c model.Company) []string {
	return []string{
		c.Name + " customer experience",
		c.Name + " " + c.Industry + " challenges",
		c.Domain + " support contact",
	}
}

// Run implements Stage. Search failures and empty results reduce the fact
// count but never fail the stage.
func (e *Enricher) Run(ctx context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	log := zap.L().With(zap.String("record_id", r.ID), zap.String("stage", e.Name()))
	c := r.Company
	now := e.clock.now()

	queries := topicQueries(c)
	results := make([][]search.Result, len(queries))
	var homepage string

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.search.Query(gctx, q)
			if err != nil {
				log.Warn("enricher: search failed", zap.String("query", q), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if e.fetcher != nil {
		g.Go(func() error {
			text, err := e.fetcher.Fetch(gctx, "https://"+c.Domain)
			if err != nil {
				log.Warn("enricher: homepage fetch failed", zap.Error(err))
				return nil
			}
			homepage = search.Snippet(text)
			return nil
		})
	}
	_ = g.Wait()

	var live []model.Fact
	var refs []string
	for qi, res := range results {
		for hi, hit := range res {
			if hi >= e.set.HitsPerQuery {
				break
			}
			if hit.Text == "" {
				continue
			}
			conf := hit.Confidence
			if conf <= 0 {
				conf = search.DefaultConfidence
			}
			live = append(live, model.Fact{
				ID:          uuid.NewString(),
				Source:      hit.Source,
				Text:        hit.Text,
				CollectedAt: now,
				TTLHours:    e.set.FactTTLHours,
				Confidence:  conf,
				CompanyID:   c.ID,
			})
			refs = append(refs, fmt.Sprintf("q%d-%d", qi, hi))
		}
	}
	if homepage != "" {
		live = append(live, model.Fact{
			ID:          uuid.NewString(),
			Source:      "https://" + c.Domain,
			Text:        homepage,
			CollectedAt: now,
			TTLHours:    e.set.FactTTLHours,
			Confidence:  search.DefaultConfidence,
			CompanyID:   c.ID,
		})
		refs = append(refs, "homepage")
	}

	facts := append([]model.Fact{}, live...)
	for _, pain := range c.Pains {
		facts = append(facts, model.Fact{
			ID:          uuid.NewString(),
			Source:      SourceSeedData,
			Text:        "Known pain point: " + pain,
			CollectedAt: now,
			TTLHours:    e.set.FactTTLHours * 2,
			Confidence:  seedConfidence,
			CompanyID:   c.ID,
		})
	}

	indexed := e.indexLive(ctx, r, live, refs)
	r.Facts = append(r.Facts, facts...)
	if err := r.Advance(model.StatusEnriched); err != nil {
		return nil, err
	}

	return map[string]any{
		"facts":      len(facts),
		"live_facts": len(live),
		"indexed":    indexed,
	}, nil
}

// indexLive embeds live facts into the company's live namespace. References
// are positional so a re-run replaces the previous entries.
func (e *Enricher) indexLive(ctx context.Context, r *model.Record, facts []model.Fact, refs []string) int {
	if len(facts) == 0 || e.index == nil || e.embedder == nil {
		return 0
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Text
	}
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		zap.L().Warn("enricher: embed live facts failed",
			zap.String("record_id", r.ID),
			zap.Int("facts", len(texts)),
			zap.Error(err),
		)
		return 0
	}

	ns := retrieval.Namespace(r.Company.Domain, retrieval.ModeLive)
	n := 0
	for i, f := range facts {
		if err := e.index.Upsert(ctx, ns, refs[i], f.Text, vecs[i]); err != nil {
			zap.L().Warn("enricher: index fact failed",
				zap.String("record_id", r.ID),
				zap.String("namespace", ns),
				zap.Error(err),
			)
			continue
		}
		n++
	}
	return n
}
