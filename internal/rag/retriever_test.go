package rag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embedFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f embedFunc) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

type stubIndex struct {
	result  QueryResult
	err     error
	block   bool
	queries int
	opts    QueryOptions
}

func (s *stubIndex) Insert(context.Context, string, Chunk) error { return nil }

func (s *stubIndex) Query(ctx context.Context, _ string, _ []float32, k int, opts ...QueryOption) (QueryResult, error) {
	s.queries++
	s.opts = ApplyQueryOptions(opts...)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.result) > k {
		return s.result[:k], nil
	}
	return s.result, nil
}

func (s *stubIndex) DeleteSource(context.Context, string, string) error { return nil }

func (s *stubIndex) Count(context.Context, string) (int, error) { return len(s.result), nil }

type stubChunks struct {
	chunks []RawChunk
	err    error
	source string
}

func (s *stubChunks) RawChunks(_ context.Context, _ string, source string) ([]RawChunk, error) {
	s.source = source
	if s.err != nil {
		return nil, s.err
	}
	return append([]RawChunk(nil), s.chunks...), nil
}

type recordingObserver struct {
	mu       sync.Mutex
	paths    []Path
	failures []Stage
}

func (o *recordingObserver) ObserveRetrieval(path Path, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
}

func (o *recordingObserver) ObserveStageFailure(stage Stage, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, stage)
}

func okEmbedder() Embedder {
	return embedFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	})
}

func unavailableEmbedder() Embedder {
	return embedFunc(func(context.Context, string) ([]float32, error) {
		return nil, ErrEmbeddingUnavailable
	})
}

func policyChunks() *stubChunks {
	return &stubChunks{chunks: []RawChunk{
		{ID: "p_1", Source: "p", Sequence: 1, Text: "Unrelated text about roads."},
		{ID: "p_0", Source: "p", Sequence: 0, Text: "This policy provides benefits for farmers."},
		{ID: "p_2", Source: "p", Sequence: 2, Text: "Farmers apply for benefits online."},
	}}
}

func newTestRetriever(t *testing.T, e Embedder, idx VectorIndex, cs ChunkSource, opts ...RetrieverOption) *Retriever {
	t.Helper()
	cfg := DefaultRetrieverConfig()
	cfg.EmbedTimeout = 50 * time.Millisecond
	cfg.QueryTimeout = 50 * time.Millisecond
	r, err := NewRetriever(e, idx, cs, cfg, opts...)
	require.NoError(t, err)
	return r
}

func TestRetriever_VectorPath(t *testing.T) {
	idx := &stubIndex{result: QueryResult{
		{Chunk: Chunk{ID: "p_0", Text: "first", Source: "p"}, Score: 0.9},
		{Chunk: Chunk{ID: "p_1", Text: "second", Source: "p", Sequence: 1}, Score: 0.4},
	}}
	obs := &recordingObserver{}
	r := newTestRetriever(t, okEmbedder(), idx, policyChunks(), WithObserver(obs))

	res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "benefits", Source: "p"})
	require.NotNil(t, res)
	assert.Equal(t, PathVector, res.Path)
	assert.Equal(t, []string{"first", "second"}, res.Context.Evidence)
	assert.Equal(t, []Stage{StageStart, StageEmbedQuery, StageIndexQuery, StageAssemble, StageDone}, res.Trace)
	assert.Equal(t, "p", idx.opts.Source)
	assert.Equal(t, []Path{PathVector}, obs.paths)
	assert.Empty(t, obs.failures)
}

func TestRetriever_FallbackWhenEmbeddingUnavailable(t *testing.T) {
	idx := &stubIndex{}
	chunks := policyChunks()
	obs := &recordingObserver{}
	r := newTestRetriever(t, unavailableEmbedder(), idx, chunks, WithObserver(obs))

	res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "What are the benefits for farmers?", Source: "p"})
	require.NotNil(t, res)
	assert.Equal(t, PathLexical, res.Path)
	assert.Equal(t, 0, idx.queries)
	assert.Equal(t, "p", chunks.source)
	assert.Equal(t, []Stage{StageStart, StageEmbedQuery, StageFallback, StageAssemble, StageDone}, res.Trace)
	assert.Equal(t, []string{
		"This policy provides benefits for farmers.",
		"Farmers apply for benefits online.",
	}, res.Context.Evidence)
	assert.Equal(t, []Stage{StageEmbedQuery}, obs.failures)
}

func TestRetriever_NilEmbedderFallsBack(t *testing.T) {
	r := newTestRetriever(t, nil, nil, policyChunks())
	res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "roads"})
	assert.Equal(t, PathLexical, res.Path)
	assert.Equal(t, []string{"Unrelated text about roads."}, res.Context.Evidence)
}

func TestRetriever_EmbedTimeout(t *testing.T) {
	slow := embedFunc(func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newTestRetriever(t, slow, &stubIndex{}, policyChunks())

	done := make(chan *Result, 1)
	go func() { done <- r.Retrieve(context.Background(), Request{Collection: "c", Query: "benefits"}) }()
	select {
	case res := <-done:
		assert.Equal(t, PathLexical, res.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("retrieval blocked on a stalled embedder")
	}
}

func TestRetriever_CollectionNotFound(t *testing.T) {
	idx := &stubIndex{err: ErrCollectionNotFound}
	r := newTestRetriever(t, okEmbedder(), idx, policyChunks())

	res := r.Retrieve(context.Background(), Request{Collection: "missing", Query: "benefits"})
	assert.Equal(t, PathNone, res.Path)
	assert.NotNil(t, res.Context.Evidence)
	assert.Empty(t, res.Context.Evidence)
	assert.NotContains(t, res.Trace, StageFallback)
	assert.Equal(t, StageDone, res.Trace[len(res.Trace)-1])
}

func TestRetriever_IndexFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		idx  *stubIndex
	}{
		{"error", &stubIndex{err: errors.New("disk gone")}},
		{"timeout", &stubIndex{block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRetriever(t, okEmbedder(), tt.idx, policyChunks())
			res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "benefits"})
			assert.Equal(t, PathLexical, res.Path)
			assert.Equal(t, []Stage{StageStart, StageEmbedQuery, StageIndexQuery, StageFallback, StageAssemble, StageDone}, res.Trace)
			assert.Len(t, res.Context.Evidence, 2)
		})
	}
}

func TestRetriever_FallbackStoreFailure(t *testing.T) {
	history := []ConversationTurn{{Role: RoleUser, Content: "hi", Timestamp: time.Now()}}
	r := newTestRetriever(t, unavailableEmbedder(), nil, &stubChunks{err: errors.New("db down")})

	res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "benefits", History: history})
	require.NotNil(t, res)
	assert.Equal(t, PathNone, res.Path)
	assert.Empty(t, res.Context.Evidence)
	assert.Len(t, res.Context.History, 1)
	assert.Equal(t, "benefits", res.Context.Query)
}

func TestRetriever_LexicalTopN(t *testing.T) {
	cs := &stubChunks{chunks: []RawChunk{
		{ID: "a_0", Source: "a", Text: "benefits"},
		{ID: "a_1", Source: "a", Sequence: 1, Text: "benefits"},
		{ID: "a_2", Source: "a", Sequence: 2, Text: "benefits"},
	}}
	r := newTestRetriever(t, nil, nil, cs)
	res := r.Retrieve(context.Background(), Request{Collection: "c", Query: "benefits"})
	require.Len(t, res.Evidence, DefaultLexicalTopN)
	assert.Equal(t, "a_0", res.Evidence[0].Chunk.ID)
	assert.Equal(t, "a_1", res.Evidence[1].Chunk.ID)
}

func TestNewRetriever_InvalidConfig(t *testing.T) {
	cfg := DefaultRetrieverConfig()
	cfg.TopK = 0
	_, err := NewRetriever(nil, nil, nil, cfg)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "top_k", cfgErr.Field)
}
