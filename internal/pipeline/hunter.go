package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/seed"
)

// HunterStore persists the companies and fresh records the Hunter creates.
type HunterStore interface {
	SaveCompany(ctx context.Context, c model.Company) error
	SaveRecord(ctx context.Context, r *model.Record) error
}

// Hunter loads target companies and opens one record per company.
type Hunter struct {
	source seed.Source
	store  HunterStore
}

// NewHunter creates a Hunter reading from src.
func NewHunter(src seed.Source, st HunterStore) *Hunter {
	return &Hunter{source: src, store: st}
}

// Run loads the seed companies, keeps those in ids (all when ids is empty)
// and persists a new record for each. Any unreadable or malformed seed data
// aborts the whole run.
func (h *Hunter) Run(ctx context.Context, ids []string) ([]*model.Record, error) {
	companies, err := h.source.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: load seed companies")
	}
	companies, err = seed.Validate(companies)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: validate seed companies")
	}
	companies = seed.Filter(companies, ids)

	records := make([]*model.Record, 0, len(companies))
	for _, c := range companies {
		if err := h.store.SaveCompany(ctx, c); err != nil {
			return nil, eris.Wrapf(err, "hunter: save company %s", c.ID)
		}
		r := model.NewRecord(c.ID, c)
		if err := h.store.SaveRecord(ctx, r); err != nil {
			return nil, eris.Wrapf(err, "hunter: save record %s", r.ID)
		}
		records = append(records, r)
	}

	zap.L().Info("hunter: records created",
		zap.Int("companies", len(companies)),
		zap.Strings("filter", ids),
	)
	return records, nil
}
