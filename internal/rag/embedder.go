package rag

import "context"

// Embedder maps text to fixed-dimension vectors. The same text must map to
// the same vector for a fixed model. Implementations wrap their failures in
// ErrEmbeddingUnavailable.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ChunkSource reads stored chunk text without going through the vector index.
// An empty source returns every chunk of the collection.
type ChunkSource interface {
	RawChunks(ctx context.Context, collection, source string) ([]RawChunk, error)
}
