package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/seed"
)

// ResetStore is the part of the store a reset touches.
type ResetStore interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
	ClearAll(ctx context.Context) error
	SaveCompany(ctx context.Context, c model.Company) error
}

// ResetResult summarizes a reset.
type ResetResult struct {
	Companies   int `json:"companies"`
	Indexed     int `json:"indexed"`
	LiveCleared int `json:"live_cleared"`
}

// Reset clears records, contacts, facts, messages and handoffs, reloads the
// seed companies and rebuilds their seed namespaces. Live namespaces of both
// the previous and the reloaded companies are emptied. Suppressions survive.
func Reset(ctx context.Context, st ResetStore, src seed.Source, idx seed.Indexer) (ResetResult, error) {
	companies, err := src.Load(ctx)
	if err != nil {
		return ResetResult{}, eris.Wrap(err, "reset: load seed companies")
	}
	companies, err = seed.Validate(companies)
	if err != nil {
		return ResetResult{}, eris.Wrap(err, "reset: validate seed companies")
	}

	previous, err := st.ListCompanies(ctx)
	if err != nil {
		return ResetResult{}, eris.Wrap(err, "reset: list companies")
	}

	if err := st.ClearAll(ctx); err != nil {
		return ResetResult{}, eris.Wrap(err, "reset: clear store")
	}
	for _, c := range companies {
		if err := st.SaveCompany(ctx, c); err != nil {
			return ResetResult{}, eris.Wrapf(err, "reset: save company %s", c.ID)
		}
	}

	res := ResetResult{Companies: len(companies)}
	res.LiveCleared, err = clearLive(ctx, idx, append(previous, companies...))
	if err != nil {
		return res, err
	}

	res.Indexed, err = idx.IndexAll(ctx, companies, true)
	if err != nil {
		return res, eris.Wrap(err, "reset: index seed companies")
	}

	zap.L().Info("reset: store rebuilt",
		zap.Int("companies", res.Companies),
		zap.Int("indexed", res.Indexed),
		zap.Int("live_cleared", res.LiveCleared),
	)
	return res, nil
}

// clearLive empties the live namespace of each distinct domain.
func clearLive(ctx context.Context, idx seed.Indexer, companies []model.Company) (int, error) {
	seen := make(map[string]bool, len(companies))
	total := 0
	for _, c := range companies {
		ns := retrieval.Namespace(c.Domain, retrieval.ModeLive)
		if seen[ns] {
			continue
		}
		seen[ns] = true
		n, err := idx.Backend.ClearNamespace(ctx, ns)
		if err != nil {
			return total, eris.Wrapf(err, "reset: clear %s", ns)
		}
		total += n
	}
	return total, nil
}
