package inference

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/rotisserie/eris"
)

// CachedEmbedder memoizes vectors from an inner Embedder in a ristretto cache
// keyed by text. Only cache misses are sent to the inner embedder, in one
// batch.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache holding roughly maxVectors
// entries.
func NewCachedEmbedder(inner Embedder, maxVectors int64) (*CachedEmbedder, error) {
	if maxVectors <= 0 {
		maxVectors = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxVectors * 10,
		MaxCost:     maxVectors,
		BufferItems: 64,
		// Cost is counted in vectors.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "inference: create embedding cache")
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns one vector per text, calling the inner embedder for misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, eris.Errorf("inference: embedder returned %d vectors for %d texts", len(vecs), len(missText))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Set(missText[j], vecs[j], 1)
	}
	c.cache.Wait()
	return out, nil
}

// Close releases the cache.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
