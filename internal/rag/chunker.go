package rag

import "strings"

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// ValidateChunking checks window parameters before any document is chunked.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return &ConfigError{Field: "chunk_size", Reason: "must be positive"}
	}
	if overlap < 0 {
		return &ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if overlap >= size {
		return &ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	return nil
}

// ChunkText splits text into windows of size words, each window starting
// size-overlap words after the previous one. The last window may be shorter.
// A window is only emitted if it contains words not covered by the previous
// one, so dropping the first overlap words of every chunk after the first and
// concatenating reproduces the original word sequence.
func ChunkText(source, text string, size, overlap int) ([]Chunk, error) {
	if err := ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		seq := len(chunks)
		chunks = append(chunks, Chunk{
			ID:       ChunkID(source, seq),
			Text:     strings.Join(words[start:end], " "),
			Source:   source,
			Sequence: seq,
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
