package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding model cannot be
	// reached or is not configured. Retrieval falls back to lexical scoring.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrCollectionNotFound is returned by queries against a collection that
	// was never written to.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrIndexCorruption marks an insert rejected by the index.
	ErrIndexCorruption = errors.New("index corruption")
)

// ConfigError reports an invalid chunking or assembly parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IndexCorruptionError reports a single chunk the index refused to store.
// NonFinite is set when the vector holds NaN or an infinity at Component.
type IndexCorruptionError struct {
	Collection string
	ChunkID    string
	Want       int
	Got        int
	NonFinite  bool
	Component  int
}

func (e *IndexCorruptionError) Error() string {
	if e.NonFinite {
		return fmt.Sprintf("chunk %q in %q: vector component %d is not finite",
			e.ChunkID, e.Collection, e.Component)
	}
	if e.Got == 0 {
		return fmt.Sprintf("chunk %q in %q has no vector", e.ChunkID, e.Collection)
	}
	return fmt.Sprintf("chunk %q in %q: vector dimension %d, collection expects %d",
		e.ChunkID, e.Collection, e.Got, e.Want)
}

func (e *IndexCorruptionError) Is(target error) bool {
	return target == ErrIndexCorruption
}
