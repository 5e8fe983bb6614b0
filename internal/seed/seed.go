// Package seed loads target companies from files, remote locations or a
// Notion database, and indexes their descriptions for retrieval.
package seed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Source yields the configured target companies. Implementations fail on
// unreadable or malformed input rather than skipping entries.
type Source interface {
	Load(ctx context.Context) ([]model.Company, error)
}

// Validate checks required fields and ID uniqueness, and normalizes domains.
func Validate(companies []model.Company) ([]model.Company, error) {
	seen := make(map[string]int, len(companies))
	out := make([]model.Company, len(companies))
	for i, c := range companies {
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		c.Domain = NormalizeDomain(c.Domain)
		c.Industry = strings.TrimSpace(c.Industry)
		switch {
		case c.ID == "":
			return nil, eris.Errorf("seed: company %d: id is required", i)
		case c.Name == "":
			return nil, eris.Errorf("seed: company %s: name is required", c.ID)
		case c.Domain == "":
			return nil, eris.Errorf("seed: company %s: domain is required", c.ID)
		case c.Size < 0:
			return nil, eris.Errorf("seed: company %s: size must be >= 0", c.ID)
		}
		if prev, dup := seen[c.ID]; dup {
			return nil, eris.Errorf("seed: company %s: duplicate id (also entry %d)", c.ID, prev)
		}
		seen[c.ID] = i
		if c.Pains == nil {
			c.Pains = []string{}
		}
		if c.Notes == nil {
			c.Notes = []string{}
		}
		out[i] = c
	}
	return out, nil
}

// NormalizeDomain lowercases a domain and strips any scheme, "www." prefix,
// port and path.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}

// Filter keeps companies whose ID is in ids, preserving source order. An
// empty ids keeps everything.
func Filter(companies []model.Company, ids []string) []model.Company {
	if len(ids) == 0 {
		return companies
	}
	allow := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allow[strings.TrimSpace(id)] = struct{}{}
	}
	out := make([]model.Company, 0, len(ids))
	for _, c := range companies {
		if _, ok := allow[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// splitList splits a cell holding several values separated by ";" or "|".
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
