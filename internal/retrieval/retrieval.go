// Package retrieval stores namespace-scoped text embeddings and ranks them by
// cosine similarity against a query vector.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already stored in the namespace.
var ErrDimensionMismatch = eris.New("retrieval: vector dimension mismatch")

// Mode separates content gathered live from content indexed from seed data.
type Mode string

const (
	ModeLive Mode = "live"
	ModeSeed Mode = "seed"
)

// Namespace returns the partition key for a company domain and mode.
func Namespace(domain string, mode Mode) string {
	return strings.ToLower(strings.TrimSpace(domain)) + "#" + string(mode)
}

// Hit is a single search result.
type Hit struct {
	Reference string  `json:"reference"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Backend is the capability set every retrieval implementation provides.
type Backend interface {
	// Upsert inserts or replaces the entry identified by (namespace, reference).
	Upsert(ctx context.Context, namespace, reference, text string, vector []float32) error
	// Search returns at most topK hits, highest score first. An empty or
	// unknown namespace yields an empty slice.
	Search(ctx context.Context, namespace string, query []float32, topK int) ([]Hit, error)
	// ClearNamespace deletes every entry in the namespace and returns the count.
	ClearNamespace(ctx context.Context, namespace string) (int, error)
	// Close releases backend resources.
	Close() error
}

// Cosine returns the cosine similarity of a and b. A zero-norm vector has
// similarity 0 with every vector.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, eris.Wrapf(ErrDimensionMismatch, "retrieval: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// rank orders hits by score descending, breaking ties by reference, and
// truncates to topK.
func rank(hits []Hit, topK int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Reference < hits[j].Reference
	})
	if topK >= 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// MergeSearch queries several namespaces and merges the hits into a single
// ranked list of at most topK entries.
func MergeSearch(ctx context.Context, b Backend, namespaces []string, query []float32, topK int) ([]Hit, error) {
	var all []Hit
	for _, ns := range namespaces {
		hits, err := b.Search(ctx, ns, query, topK)
		if err != nil {
			return nil, eris.Wrapf(err, "retrieval: search %s", ns)
		}
		all = append(all, hits...)
	}
	return rank(all, topK), nil
}

func validate(namespace, reference string) error {
	if namespace == "" {
		return eris.New("retrieval: namespace is required")
	}
	if reference == "" {
		return eris.New("retrieval: reference is required")
	}
	return nil
}
