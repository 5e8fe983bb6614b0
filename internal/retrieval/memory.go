package retrieval

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

type memEntry struct {
	reference string
	text      string
	vector    []float32
}

// MemoryBackend keeps entries in process memory and ranks them by linear scan.
type MemoryBackend struct {
	mu         sync.RWMutex
	namespaces map[string][]memEntry
}

// NewMemory creates an empty MemoryBackend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{namespaces: make(map[string][]memEntry)}
}

func (m *MemoryBackend) Upsert(_ context.Context, namespace, reference, text string, vector []float32) error {
	if err := validate(namespace, reference); err != nil {
		return err
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer observe("memory", "upsert")

	entries := m.namespaces[namespace]
	for _, e := range entries {
		if e.reference != reference && len(e.vector) != len(vec) {
			return eris.Wrapf(ErrDimensionMismatch, "retrieval: upsert %s into %s", reference, namespace)
		}
	}
	for i, e := range entries {
		if e.reference == reference {
			entries[i] = memEntry{reference: reference, text: text, vector: vec}
			return nil
		}
	}
	m.namespaces[namespace] = append(entries, memEntry{reference: reference, text: text, vector: vec})
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, namespace string, query []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	defer observe("memory", "search")

	entries := m.namespaces[namespace]
	if len(entries) == 0 || topK <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		score, err := Cosine(query, e.vector)
		if err != nil {
			return nil, eris.Wrapf(err, "retrieval: search %s", namespace)
		}
		hits = append(hits, Hit{Reference: e.reference, Text: e.text, Score: score})
	}
	return rank(hits, topK), nil
}

func (m *MemoryBackend) ClearNamespace(_ context.Context, namespace string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer observe("memory", "clear")

	n := len(m.namespaces[namespace])
	delete(m.namespaces, namespace)
	return n, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryBackend) Close() error { return nil }
