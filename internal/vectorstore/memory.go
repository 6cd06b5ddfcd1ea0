package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryStore is an in-memory, namespace-keyed vector store using brute-force
// inner product search. Used in tests and offline development.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string][]memoryEntry
}

type memoryEntry struct {
	id     string
	vector []float32
	meta   models.VectorMetadata
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string][]memoryEntry)}
}

// Upsert stores the vector in the namespace derived from its metadata,
// replacing any existing entry with the same id.
func (m *MemoryStore) Upsert(ctx context.Context, id string, vector []float32, meta models.VectorMetadata) error {
	ns := NamespaceFor(meta.Visibility, meta.OwnerID)
	vec := make([]float32, len(vector))
	copy(vec, vector)
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.namespaces[ns]
	for i := range entries {
		if entries[i].id == id {
			entries[i] = memoryEntry{id: id, vector: vec, meta: meta}
			return nil
		}
	}
	m.namespaces[ns] = append(entries, memoryEntry{id: id, vector: vec, meta: meta})
	return nil
}

// Query returns the topK entries of one namespace by inner product.
func (m *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.namespaces[namespace]
	if topK <= 0 || len(entries) == 0 {
		return nil, nil
	}
	matches := make([]models.VectorMatch, 0, len(entries))
	for _, e := range entries {
		var dot float64
		n := len(vector)
		if len(e.vector) < n {
			n = len(e.vector)
		}
		for i := 0; i < n; i++ {
			dot += float64(vector[i] * e.vector[i])
		}
		matches = append(matches, models.VectorMatch{VectorMetadata: e.meta, Score: dot})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByIDs removes entries by id from the namespace derived from
// visibility and owner.
func (m *MemoryStore) DeleteByIDs(ctx context.Context, ids []string, visibility models.Visibility, ownerID string) error {
	if len(ids) == 0 {
		return nil
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	ns := NamespaceFor(visibility, ownerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.namespaces[ns]
	kept := entries[:0]
	for _, e := range entries {
		if !remove[e.id] {
			kept = append(kept, e)
		}
	}
	m.namespaces[ns] = kept
	return nil
}

// Size returns the number of vectors across all namespaces.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, entries := range m.namespaces {
		total += len(entries)
	}
	return total
}
