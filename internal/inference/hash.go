package inference

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic, dependency-free embedder based on feature
// hashing of lowercase word unigrams and bigrams. Vectors are L2-normalized;
// a text with no words maps to the zero vector.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder of dimension dim (256 when dim <= 0).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{Dim: dim}
}

// Embed returns one vector per text.
func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	hf := fnv.New64a()
	_, _ = hf.Write([]byte(feature))
	sum := hf.Sum64()
	idx := int(sum % uint64(h.Dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
