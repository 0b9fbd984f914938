package rag

import (
	"context"
	"math"
	"sort"
)

// VectorIndex stores chunks with their vectors per named collection.
//
// Insert creates the collection on first use and replaces any chunk with the
// same ID. Query and DeleteSource return ErrCollectionNotFound for a
// collection that was never written to; Count reports zero for it.
type VectorIndex interface {
	Insert(ctx context.Context, collection string, chunk Chunk) error
	Query(ctx context.Context, collection string, vector []float32, k int, opts ...QueryOption) (QueryResult, error)
	DeleteSource(ctx context.Context, collection, source string) error
	Count(ctx context.Context, collection string) (int, error)
}

// QueryOptions narrows the candidate set of a query.
type QueryOptions struct {
	Source string
}

type QueryOption func(*QueryOptions)

// WithSource restricts a query to chunks of one source. Empty means all.
func WithSource(source string) QueryOption {
	return func(o *QueryOptions) {
		o.Source = source
	}
}

// ApplyQueryOptions folds opts into a QueryOptions value.
func ApplyQueryOptions(opts ...QueryOption) QueryOptions {
	var o QueryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Matches reports whether chunk c passes the options' filters.
func (o QueryOptions) Matches(c Chunk) bool {
	return o.Source == "" || o.Source == c.Source
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is zero or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NonFiniteComponent returns the index of the first NaN or infinite
// component of v, or -1 when every component is finite.
func NonFiniteComponent(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

// Less orders scored chunks best first: higher score, then smaller sequence,
// then lexicographically smaller ID.
func Less(a, b ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Chunk.Sequence != b.Chunk.Sequence {
		return a.Chunk.Sequence < b.Chunk.Sequence
	}
	return a.Chunk.ID < b.Chunk.ID
}

// TopK sorts candidates in place and returns at most k of them.
func TopK(candidates []ScoredChunk, k int) QueryResult {
	if k <= 0 || len(candidates) == 0 {
		return QueryResult{}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return Less(candidates[i], candidates[j])
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make(QueryResult, k)
	copy(out, candidates[:k])
	return out
}
