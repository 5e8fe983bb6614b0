package retrieval

import (
	"context"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rotisserie/eris"
)

// zeroNormKey marks documents whose original vector had zero norm. chromem
// normalizes every stored vector, so such documents are stored with a unit
// placeholder and scored 0 at query time.
const zeroNormKey = "zero_norm"

// ChromemBackend stores each namespace as a chromem-go collection. With a
// path it persists to disk; without one it is purely in memory.
type ChromemBackend struct {
	db *chromem.DB
	mu sync.Mutex
}

// NewChromem opens a chromem database. An empty path creates an in-memory DB.
func NewChromem(path string, compress bool) (*ChromemBackend, error) {
	if path == "" {
		return &ChromemBackend{db: chromem.NewDB()}, nil
	}
	cdb, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, eris.Wrapf(err, "retrieval: open chromem at %s", path)
	}
	return &ChromemBackend{db: cdb}, nil
}

// noEmbed rejects text-only documents: vectors are always supplied by callers.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, eris.New("retrieval: chromem documents must carry an embedding")
}

func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	if dim > 0 {
		v[0] = 1
	}
	return v
}

func isLengthErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "same length")
}

func (b *ChromemBackend) Upsert(ctx context.Context, namespace, reference, text string, vector []float32) error {
	if err := validate(namespace, reference); err != nil {
		return err
	}
	if len(vector) == 0 {
		return eris.New("retrieval: empty vector")
	}
	defer observe("chromem", "upsert")

	b.mu.Lock()
	defer b.mu.Unlock()

	col, err := b.db.GetOrCreateCollection(namespace, nil, noEmbed)
	if err != nil {
		return eris.Wrapf(err, "retrieval: collection %s", namespace)
	}
	if err := b.checkDimension(ctx, col, reference, len(vector)); err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        reference,
		Content:   text,
		Embedding: append([]float32(nil), vector...),
	}
	if isZero(vector) {
		doc.Embedding = unitVector(len(vector))
		doc.Metadata = map[string]string{zeroNormKey: "true"}
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return eris.Wrapf(err, "retrieval: upsert %s", reference)
	}
	return nil
}

// checkDimension rejects vectors whose length differs from the collection's,
// unless the only stored document is the one being replaced.
func (b *ChromemBackend) checkDimension(ctx context.Context, col *chromem.Collection, reference string, dim int) error {
	n := col.Count()
	if n == 0 {
		return nil
	}
	if n == 1 {
		if _, err := col.GetByID(ctx, reference); err == nil {
			return nil
		}
	}
	_, err := col.QueryEmbedding(ctx, unitVector(dim), 1, nil, nil)
	if isLengthErr(err) {
		return eris.Wrapf(ErrDimensionMismatch, "retrieval: upsert %s into %s", reference, col.Name)
	}
	if err != nil {
		return eris.Wrap(err, "retrieval: probe dimension")
	}
	return nil
}

func (b *ChromemBackend) Search(ctx context.Context, namespace string, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 || len(query) == 0 {
		return []Hit{}, nil
	}
	defer observe("chromem", "search")

	col := b.db.GetCollection(namespace, noEmbed)
	if col == nil || col.Count() == 0 {
		return []Hit{}, nil
	}

	zeroQuery := isZero(query)
	q := query
	if zeroQuery {
		q = unitVector(len(query))
	}

	// Rank every document so ties resolve the same way as the other backends.
	results, err := col.QueryEmbedding(ctx, q, col.Count(), nil, nil)
	if isLengthErr(err) {
		return nil, eris.Wrapf(ErrDimensionMismatch, "retrieval: search %s", namespace)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "retrieval: search %s", namespace)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if zeroQuery || r.Metadata[zeroNormKey] == "true" {
			score = 0
		}
		hits = append(hits, Hit{Reference: r.ID, Text: r.Content, Score: score})
	}
	return rank(hits, topK), nil
}

func (b *ChromemBackend) ClearNamespace(_ context.Context, namespace string) (int, error) {
	defer observe("chromem", "clear")

	b.mu.Lock()
	defer b.mu.Unlock()

	col := b.db.GetCollection(namespace, noEmbed)
	if col == nil {
		return 0, nil
	}
	n := col.Count()
	if err := b.db.DeleteCollection(namespace); err != nil {
		return 0, eris.Wrapf(err, "retrieval: clear %s", namespace)
	}
	return n, nil
}

// Close is a no-op; persistent chromem writes through on every upsert.
func (b *ChromemBackend) Close() error { return nil }
