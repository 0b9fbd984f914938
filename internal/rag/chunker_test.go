package rag

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Example(t *testing.T) {
	chunks, err := ChunkText("doc", "one two three four five six", 4, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "one two three four", chunks[0].Text)
	assert.Equal(t, "four five six", chunks[1].Text)
	assert.Equal(t, "doc_0", chunks[0].ID)
	assert.Equal(t, "doc_1", chunks[1].ID)
	assert.Equal(t, 0, chunks[0].Sequence)
	assert.Equal(t, 1, chunks[1].Sequence)
	assert.Equal(t, "doc", chunks[1].Source)
}

func TestChunkText_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		field   string
	}{
		{"zero size", 0, 0, "chunk_size"},
		{"negative overlap", 4, -1, "chunk_overlap"},
		{"overlap equals size", 4, 4, "chunk_overlap"},
		{"overlap exceeds size", 4, 9, "chunk_overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChunkText("doc", "a b c d e", tt.size, tt.overlap)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestChunkText_EmptyText(t *testing.T) {
	chunks, err := ChunkText("doc", "  \n\t ", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkText_ShortText(t *testing.T) {
	chunks, err := ChunkText("doc", "just three words", 800, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just three words", chunks[0].Text)
}

func TestChunkText_Coverage(t *testing.T) {
	words := make([]string, 0, 97)
	for i := 0; i < 97; i++ {
		words = append(words, "w"+strings.Repeat("x", i%7)+string(rune('a'+i%26)))
	}
	text := strings.Join(words, "  \n")

	for size := 1; size <= 12; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks, err := ChunkText("doc", text, size, overlap)
			require.NoError(t, err)

			var rebuilt []string
			for i, c := range chunks {
				cw := strings.Fields(c.Text)
				assert.LessOrEqual(t, len(cw), size)
				assert.NotEmpty(t, cw)
				if i > 0 {
					require.GreaterOrEqual(t, len(cw), overlap)
					assert.Equal(t, rebuilt[len(rebuilt)-overlap:], cw[:overlap],
						"size=%d overlap=%d chunk=%d overlap zone", size, overlap, i)
					cw = cw[overlap:]
				}
				rebuilt = append(rebuilt, cw...)
			}
			assert.Equal(t, words, rebuilt, "size=%d overlap=%d", size, overlap)
		}
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	text := strings.Repeat("the scheme covers small farmers and landless labourers ", 40)
	first, err := ChunkText("p1", text, 25, 5)
	require.NoError(t, err)
	second, err := ChunkText("p1", text, 25, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateChunking_Defaults(t *testing.T) {
	assert.NoError(t, ValidateChunking(DefaultChunkSize, DefaultChunkOverlap))
}
