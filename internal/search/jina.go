package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/pkg/jina"
)

// Jina adapts the Jina AI search and reader APIs.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// Query runs a Jina web search. A query with no results yields an empty slice.
func (j *Jina) Query(ctx context.Context, text string) ([]Result, error) {
	resp, err := j.client.Search(ctx, text)
	if err != nil {
		return nil, eris.Wrapf(err, "search: jina query %q", text)
	}
	out := make([]Result, 0, len(resp.Data))
	for _, r := range resp.Data {
		body := r.Description
		if body == "" {
			body = r.Content
		}
		if body = Snippet(body); body == "" {
			continue
		}
		src := r.URL
		if src == "" {
			src = r.Title
		}
		out = append(out, Result{Text: body, Source: src, Confidence: DefaultConfidence})
	}
	return out, nil
}

// Fetch reads a page as markdown.
func (j *Jina) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := j.client.Read(ctx, url)
	if err != nil {
		return "", eris.Wrapf(err, "search: jina fetch %s", url)
	}
	return resp.Data.Content, nil
}
