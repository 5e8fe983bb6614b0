// Package search provides the web search and page fetch collaborators used to
// gather facts about target companies.
package search

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultConfidence is assigned to results whose provider reports none.
const DefaultConfidence = 0.7

// maxSnippet bounds the text kept from a single result.
const maxSnippet = 600

// Result is one piece of evidence returned by a search.
type Result struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Searcher answers free-text queries with ranked results.
type Searcher interface {
	Query(ctx context.Context, text string) ([]Result, error)
}

// Fetcher retrieves the readable text of a URL. An empty string means the
// page had no content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Offline returns deterministic canned results so the pipeline can run
// without network access.
type Offline struct{}

// Query returns two fixed snippets mentioning text.
func (Offline) Query(_ context.Context, text string) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Result{}, nil
	}
	return []Result{
		{Text: "Found that " + text + " is a critical priority for modern businesses", Source: "Industry Report", Confidence: 0.85},
		{Text: "Best practices for " + text + " include automation and personalization", Source: "CX Weekly", Confidence: 0.75},
	}, nil
}

// Fetch returns an empty page.
func (Offline) Fetch(context.Context, string) (string, error) {
	return "", nil
}

// Snippet collapses whitespace and truncates s on a rune boundary.
func Snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxSnippet {
		return s
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "…"
}
