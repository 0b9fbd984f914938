package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"scaled", []float32{1, 2}, []float32{2, 4}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTopK_BoundAndOrder(t *testing.T) {
	candidates := []ScoredChunk{
		{Chunk: Chunk{ID: "p_3", Sequence: 3}, Score: 0.2},
		{Chunk: Chunk{ID: "p_0", Sequence: 0}, Score: 0.9},
		{Chunk: Chunk{ID: "p_1", Sequence: 1}, Score: 0.5},
		{Chunk: Chunk{ID: "p_2", Sequence: 2}, Score: 0.7},
	}
	got := TopK(candidates, 3)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.Equal(t, "p_0", got[0].Chunk.ID)

	assert.Len(t, TopK(candidates, 10), 4)
	assert.Empty(t, TopK(candidates, 0))
	assert.Empty(t, TopK(nil, 3))
}

func TestTopK_TieBreak(t *testing.T) {
	build := func() []ScoredChunk {
		return []ScoredChunk{
			{Chunk: Chunk{ID: "b_1", Sequence: 1}, Score: 0.5},
			{Chunk: Chunk{ID: "a_1", Sequence: 1}, Score: 0.5},
			{Chunk: Chunk{ID: "z_0", Sequence: 0}, Score: 0.5},
			{Chunk: Chunk{ID: "top", Sequence: 9}, Score: 0.8},
		}
	}
	want := []string{"top", "z_0", "a_1", "b_1"}
	for run := 0; run < 5; run++ {
		got := TopK(build(), 4)
		ids := make([]string, len(got))
		for i := range got {
			ids[i] = got[i].Chunk.ID
		}
		assert.Equal(t, want, ids)
	}
}

func TestQueryOptions(t *testing.T) {
	o := ApplyQueryOptions(WithSource("policy-1"), nil)
	assert.True(t, o.Matches(Chunk{Source: "policy-1"}))
	assert.False(t, o.Matches(Chunk{Source: "policy-2"}))
	assert.True(t, ApplyQueryOptions().Matches(Chunk{Source: "anything"}))
}

func TestIndexCorruptionError(t *testing.T) {
	err := error(&IndexCorruptionError{Collection: "c", ChunkID: "x_0", Want: 3, Got: 2})
	assert.ErrorIs(t, err, ErrIndexCorruption)
	assert.Contains(t, err.Error(), "dimension 2")

	missing := error(&IndexCorruptionError{Collection: "c", ChunkID: "x_1"})
	assert.Contains(t, missing.Error(), "has no vector")

	nan := error(&IndexCorruptionError{Collection: "c", ChunkID: "x_2", Want: 3, Got: 3, NonFinite: true, Component: 1})
	assert.ErrorIs(t, nan, ErrIndexCorruption)
	assert.Contains(t, nan.Error(), "component 1 is not finite")
}

func TestNonFiniteComponent(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(-1))
	assert.Equal(t, -1, NonFiniteComponent(nil))
	assert.Equal(t, -1, NonFiniteComponent([]float32{0, 1, -2.5}))
	assert.Equal(t, 1, NonFiniteComponent([]float32{0, nan, inf}))
	assert.Equal(t, 2, NonFiniteComponent([]float32{0, 1, inf}))
}
