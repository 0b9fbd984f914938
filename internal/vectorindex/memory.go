// Package vectorindex provides rag.VectorIndex implementations: an in-process
// map for tests and single-node runs, and a gorm-backed index that survives
// restarts.
package vectorindex

import (
	"context"
	"sync"

	"policymitr/internal/rag"
)

type memoryCollection struct {
	dim     int
	entries map[string]rag.Chunk
}

// Memory is a brute-force cosine index guarded by a RWMutex.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) Insert(ctx context.Context, collection string, chunk rag.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if err := checkDimension(collection, chunk, ok, dimOf(c)); err != nil {
		return err
	}
	if !ok {
		c = &memoryCollection{dim: len(chunk.Vector), entries: make(map[string]rag.Chunk)}
		m.collections[collection] = c
	}
	stored := chunk
	stored.Vector = append([]float32(nil), chunk.Vector...)
	c.entries[chunk.ID] = stored
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, vector []float32, k int, opts ...rag.QueryOption) (rag.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := rag.ApplyQueryOptions(opts...)

	m.mu.RLock()
	c, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return nil, rag.ErrCollectionNotFound
	}
	candidates := make([]rag.ScoredChunk, 0, len(c.entries))
	for _, entry := range c.entries {
		if !options.Matches(entry) {
			continue
		}
		candidates = append(candidates, rag.ScoredChunk{
			Chunk: entry,
			Score: rag.CosineSimilarity(vector, entry.Vector),
		})
	}
	m.mu.RUnlock()

	result := rag.TopK(candidates, k)
	for i := range result {
		result[i].Chunk.Vector = append([]float32(nil), result[i].Chunk.Vector...)
	}
	return result, nil
}

func (m *Memory) DeleteSource(ctx context.Context, collection, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return rag.ErrCollectionNotFound
	}
	for id, entry := range c.entries {
		if entry.Source == source {
			delete(c.entries, id)
		}
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	return len(c.entries), nil
}

func dimOf(c *memoryCollection) int {
	if c == nil {
		return 0
	}
	return c.dim
}

// checkDimension rejects empty or non-finite vectors and, once a collection
// exists, vectors whose length differs from the collection's.
func checkDimension(collection string, chunk rag.Chunk, exists bool, dim int) error {
	if len(chunk.Vector) == 0 {
		return &rag.IndexCorruptionError{Collection: collection, ChunkID: chunk.ID, Want: dim}
	}
	if i := rag.NonFiniteComponent(chunk.Vector); i >= 0 {
		return &rag.IndexCorruptionError{
			Collection: collection,
			ChunkID:    chunk.ID,
			Want:       dim,
			Got:        len(chunk.Vector),
			NonFinite:  true,
			Component:  i,
		}
	}
	if exists && len(chunk.Vector) != dim {
		return &rag.IndexCorruptionError{Collection: collection, ChunkID: chunk.ID, Want: dim, Got: len(chunk.Vector)}
	}
	return nil
}
