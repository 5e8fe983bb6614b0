package seed

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
)

// Document is a text indexed into a company's seed namespace.
type Document struct {
	Reference string
	Text      string
}

// Documents returns the seed texts for a company: its description, one entry
// per pain point and one per note.
func Documents(c model.Company) []Document {
	docs := []Document{{
		Reference: "description",
		Text:      fmt.Sprintf("%s is a %s company with %d employees", c.Name, c.Industry, c.Size),
	}}
	for i, p := range c.Pains {
		docs = append(docs, Document{Reference: fmt.Sprintf("pain-%d", i), Text: fmt.Sprintf("%s challenge: %s", c.Name, p)})
	}
	for i, n := range c.Notes {
		docs = append(docs, Document{Reference: fmt.Sprintf("note-%d", i), Text: fmt.Sprintf("%s: %s", c.Name, n)})
	}
	return docs
}

// Indexer writes seed documents into the retrieval store.
type Indexer struct {
	Backend  retrieval.Backend
	Embedder inference.Embedder
}

// IndexCompany upserts the company's seed documents into its seed namespace,
// clearing the namespace first when clear is set. It returns the number of
// documents written.
func (x Indexer) IndexCompany(ctx context.Context, c model.Company, clear bool) (int, error) {
	ns := retrieval.Namespace(c.Domain, retrieval.ModeSeed)
	if clear {
		if _, err := x.Backend.ClearNamespace(ctx, ns); err != nil {
			return 0, eris.Wrapf(err, "seed: clear %s", ns)
		}
	}

	docs := Documents(c)
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := x.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, eris.Wrapf(err, "seed: embed %s", c.ID)
	}
	if len(vecs) != len(docs) {
		return 0, eris.Errorf("seed: embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}
	for i, d := range docs {
		if err := x.Backend.Upsert(ctx, ns, d.Reference, d.Text, vecs[i]); err != nil {
			return i, eris.Wrapf(err, "seed: upsert %s/%s", ns, d.Reference)
		}
	}
	return len(docs), nil
}

// IndexAll indexes every company and returns the total document count.
func (x Indexer) IndexAll(ctx context.Context, companies []model.Company, clear bool) (int, error) {
	total := 0
	for _, c := range companies {
		n, err := x.IndexCompany(ctx, c, clear)
		total += n
		if err != nil {
			return total, err
		}
		zap.L().Debug("seed: indexed company", zap.String("company_id", c.ID), zap.Int("documents", n))
	}
	zap.L().Info("seed: index complete", zap.Int("companies", len(companies)), zap.Int("documents", total))
	return total, nil
}
