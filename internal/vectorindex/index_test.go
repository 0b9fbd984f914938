package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policymitr/internal/platform/sqlite"
	"policymitr/internal/rag"
)

type indexFactory func(t *testing.T) rag.VectorIndex

func newPersistentIndex(t *testing.T) rag.VectorIndex {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	idx := NewPersistent(db)
	require.NoError(t, idx.Migrate())
	return idx
}

func implementations() map[string]indexFactory {
	return map[string]indexFactory{
		"memory":     func(*testing.T) rag.VectorIndex { return NewMemory() },
		"persistent": newPersistentIndex,
	}
}

func chunk(source string, seq int, vec ...float32) rag.Chunk {
	return rag.Chunk{
		ID:       rag.ChunkID(source, seq),
		Text:     fmt.Sprintf("%s chunk %d", source, seq),
		Source:   source,
		Sequence: seq,
		Vector:   vec,
	}
}

func TestIndex_Contract(t *testing.T) {
	for name, factory := range implementations() {
		t.Run(name, func(t *testing.T) {
			t.Run("query ranks by cosine", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 0, 1, 0)))
				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 1, 0, 1)))
				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 2, 1, 1)))

				res, err := idx.Query(ctx, "c", []float32{1, 0}, 2)
				require.NoError(t, err)
				require.Len(t, res, 2)
				assert.Equal(t, "p_0", res[0].Chunk.ID)
				assert.Equal(t, "p_2", res[1].Chunk.ID)
				assert.InDelta(t, 1.0, res[0].Score, 1e-6)
				assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
				assert.Equal(t, "p chunk 0", res[0].Chunk.Text)
			})

			t.Run("tie break by sequence then id", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				require.NoError(t, idx.Insert(ctx, "c", chunk("b", 1, 1, 0)))
				require.NoError(t, idx.Insert(ctx, "c", chunk("a", 1, 2, 0)))
				require.NoError(t, idx.Insert(ctx, "c", chunk("z", 0, 3, 0)))

				for i := 0; i < 3; i++ {
					res, err := idx.Query(ctx, "c", []float32{1, 0}, 3)
					require.NoError(t, err)
					ids := []string{res[0].Chunk.ID, res[1].Chunk.ID, res[2].Chunk.ID}
					assert.Equal(t, []string{"z_0", "a_1", "b_1"}, ids)
				}
			})

			t.Run("insert replaces by id", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 0, 1, 0)))
				replaced := chunk("p", 0, 0, 1)
				replaced.Text = "new text"
				require.NoError(t, idx.Insert(ctx, "c", replaced))

				n, err := idx.Count(ctx, "c")
				require.NoError(t, err)
				assert.Equal(t, 1, n)

				res, err := idx.Query(ctx, "c", []float32{0, 1}, 1)
				require.NoError(t, err)
				assert.Equal(t, "new text", res[0].Chunk.Text)
				assert.InDelta(t, 1.0, res[0].Score, 1e-6)
			})

			t.Run("collections are isolated", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				require.NoError(t, idx.Insert(ctx, "one", chunk("p", 0, 1, 0)))
				require.NoError(t, idx.Insert(ctx, "two", chunk("q", 0, 1, 0, 0)))

				res, err := idx.Query(ctx, "one", []float32{1, 0}, 10)
				require.NoError(t, err)
				require.Len(t, res, 1)
				assert.Equal(t, "p_0", res[0].Chunk.ID)
			})

			t.Run("unknown collection", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				_, err := idx.Query(ctx, "missing", []float32{1}, 3)
				assert.ErrorIs(t, err, rag.ErrCollectionNotFound)
				assert.ErrorIs(t, idx.DeleteSource(ctx, "missing", "p"), rag.ErrCollectionNotFound)

				n, err := idx.Count(ctx, "missing")
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("dimension mismatch rejects only that chunk", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 0, 1, 0, 0)))

				err := idx.Insert(ctx, "c", chunk("p", 1, 1, 0))
				var corrupt *rag.IndexCorruptionError
				require.True(t, errors.As(err, &corrupt))
				assert.Equal(t, 3, corrupt.Want)
				assert.Equal(t, 2, corrupt.Got)
				assert.ErrorIs(t, idx.Insert(ctx, "c", chunk("p", 2)), rag.ErrIndexCorruption)

				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 3, 0, 1, 0)))
				n, err := idx.Count(ctx, "c")
				require.NoError(t, err)
				assert.Equal(t, 2, n)
			})

			t.Run("non-finite vectors are rejected", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				nan := float32(math.NaN())
				inf := float32(math.Inf(1))

				err := idx.Insert(ctx, "c", chunk("p", 0, 1, nan))
				var corrupt *rag.IndexCorruptionError
				require.True(t, errors.As(err, &corrupt))
				assert.True(t, corrupt.NonFinite)
				assert.Equal(t, 1, corrupt.Component)

				n, err := idx.Count(ctx, "c")
				require.NoError(t, err)
				assert.Zero(t, n)

				require.NoError(t, idx.Insert(ctx, "c", chunk("p", 1, 1, 0)))
				assert.ErrorIs(t, idx.Insert(ctx, "c", chunk("p", 2, inf, 0)), rag.ErrIndexCorruption)
				assert.ErrorIs(t, idx.Insert(ctx, "c", chunk("p", 3, 0, -inf)), rag.ErrIndexCorruption)

				res, err := idx.Query(ctx, "c", []float32{1, 0}, 5)
				require.NoError(t, err)
				require.Len(t, res, 1)
				assert.Equal(t, "p_1", res[0].Chunk.ID)
			})

			t.Run("delete source and source filter", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				for i := 0; i < 3; i++ {
					require.NoError(t, idx.Insert(ctx, "c", chunk("keep", i, 1, float32(i))))
					require.NoError(t, idx.Insert(ctx, "c", chunk("drop", i, 1, float32(i))))
				}

				res, err := idx.Query(ctx, "c", []float32{1, 0}, 10, rag.WithSource("drop"))
				require.NoError(t, err)
				require.Len(t, res, 3)
				for _, r := range res {
					assert.Equal(t, "drop", r.Chunk.Source)
				}

				require.NoError(t, idx.DeleteSource(ctx, "c", "drop"))
				n, err := idx.Count(ctx, "c")
				require.NoError(t, err)
				assert.Equal(t, 3, n)

				res, err = idx.Query(ctx, "c", []float32{1, 0}, 10, rag.WithSource("drop"))
				require.NoError(t, err)
				assert.Empty(t, res)
			})

			t.Run("top k bound", func(t *testing.T) {
				idx := factory(t)
				ctx := context.Background()
				for i := 0; i < 8; i++ {
					require.NoError(t, idx.Insert(ctx, "c", chunk("p", i, float32(i+1), 1)))
				}
				for _, k := range []int{0, 1, 5, 8, 20} {
					res, err := idx.Query(ctx, "c", []float32{1, 1}, k)
					require.NoError(t, err)
					assert.LessOrEqual(t, len(res), k)
					for i := 1; i < len(res); i++ {
						assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
					}
				}
			})
		})
	}
}

func TestMemory_VectorsAreCopied(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	c := chunk("p", 0, 1, 0)
	require.NoError(t, idx.Insert(ctx, "c", c))
	c.Vector[0] = 0

	res, err := idx.Query(ctx, "c", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)

	res[0].Chunk.Vector[0] = 42
	again, err := idx.Query(ctx, "c", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0].Chunk.Vector[0])
}

func TestMemory_ConcurrentInsertAndQuery(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "c", chunk("seed", 0, 1, 0)))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = idx.Insert(ctx, "c", chunk(fmt.Sprintf("w%d", w), i, 1, float32(i)))
				_, _ = idx.Query(ctx, "c", []float32{1, 0}, 3)
			}
		}(w)
	}
	wg.Wait()

	n, err := idx.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 8*50+1, n)
}

func TestPersistent_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	db, err := sqlite.New(ctx, path)
	require.NoError(t, err)
	idx := NewPersistent(db)
	require.NoError(t, idx.Migrate())
	require.NoError(t, idx.Insert(ctx, "c", chunk("p", 0, 0.5, 0.25)))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err = sqlite.New(ctx, path)
	require.NoError(t, err)
	reopened := NewPersistent(db)
	require.NoError(t, reopened.Migrate())

	res, err := reopened.Query(ctx, "c", []float32{0.5, 0.25}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, []float32{0.5, 0.25}, res[0].Chunk.Vector)
}
