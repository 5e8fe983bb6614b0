package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// HandoffStatus is the Status option written to a company page once its
// prospect is ready for a salesperson.
const HandoffStatus = "Ready for Handoff"

// QueryAll fetches every page of a database, following cursors until the
// result set is exhausted. filter may be nil.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// QueryTargets returns the pages of the company database that are not
// checked as excluded.
func QueryTargets(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Exclude",
			Checkbox: &notionapi.CheckboxFilterCondition{Equals: false},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query targets")
	}
	return pages, nil
}

// MarkHandoff sets the handoff status, fit score and handoff date on a
// company page.
func MarkHandoff(ctx context.Context, c Client, pageID string, fitScore float64, at time.Time) error {
	date := notionapi.Date(at)
	_, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Status": notionapi.SelectProperty{
				Select: notionapi.Option{Name: HandoffStatus},
			},
			"Fit Score": notionapi.NumberProperty{
				Number: fitScore,
			},
			"Handed Off": notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &date},
			},
		},
	})
	if err != nil {
		return eris.Wrapf(err, "notion: mark handoff %s", pageID)
	}
	return nil
}

// Text returns the trimmed plain text of a title, rich text, select, URL or
// email property. Missing or unsupported properties yield "".
func Text(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var b strings.Builder
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.SelectProperty:
		b.WriteString(p.Select.Name)
	case *notionapi.URLProperty:
		b.WriteString(p.URL)
	case *notionapi.EmailProperty:
		b.WriteString(p.Email)
	}
	return strings.TrimSpace(b.String())
}

// Number returns the value of a number property, or 0.
func Number(page notionapi.Page, name string) float64 {
	if p, ok := page.Properties[name].(*notionapi.NumberProperty); ok {
		return p.Number
	}
	return 0
}

// List returns the option names of a multi-select property, or the lines of a
// rich text property.
func List(page notionapi.Page, name string) []string {
	switch p := page.Properties[name].(type) {
	case *notionapi.MultiSelectProperty:
		out := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			if n := strings.TrimSpace(o.Name); n != "" {
				out = append(out, n)
			}
		}
		return out
	case *notionapi.RichTextProperty:
		var out []string
		for _, line := range strings.Split(Text(page, name), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return nil
}
