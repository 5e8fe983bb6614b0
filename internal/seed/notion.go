package seed

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/notion"
)

// NotionSource reads companies from a Notion database with the properties
// Name (title), Domain, Industry, Size (number), Pains and Notes. Pages
// checked as Exclude are skipped. The page ID becomes the company ID.
type NotionSource struct {
	Client     notion.Client
	DatabaseID string
}

// Load queries the database and validates the result.
func (s NotionSource) Load(ctx context.Context) ([]model.Company, error) {
	pages, err := notion.QueryTargets(ctx, s.Client, s.DatabaseID)
	if err != nil {
		return nil, eris.Wrap(err, "seed: load notion companies")
	}
	companies := make([]model.Company, 0, len(pages))
	for _, p := range pages {
		companies = append(companies, model.Company{
			ID:       string(p.ID),
			Name:     notion.Text(p, "Name"),
			Domain:   notion.Text(p, "Domain"),
			Industry: notion.Text(p, "Industry"),
			Size:     int(notion.Number(p, "Size")),
			Pains:    notion.List(p, "Pains"),
			Notes:    notion.List(p, "Notes"),
		})
	}
	return Validate(companies)
}
