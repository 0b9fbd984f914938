// Package rag implements retrieval-augmented context assembly: chunking policy
// text, ranking indexed chunks for a query and building a bounded context for
// the answer generator.
package rag

import (
	"fmt"
	"time"
)

// Chunk is a bounded, ordered fragment of a source document.
type Chunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Source   string    `json:"source"`
	Sequence int       `json:"sequence"`
	Vector   []float32 `json:"-"`
}

// ChunkID builds the identifier of the chunk at position seq of source.
func ChunkID(source string, seq int) string {
	return fmt.Sprintf("%s_%d", source, seq)
}

// ScoredChunk is a chunk together with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// QueryResult is ordered best match first.
type QueryResult []ScoredChunk

// Texts returns the chunk texts in result order.
func (r QueryResult) Texts() []string {
	out := make([]string, len(r))
	for i := range r {
		out[i] = r[i].Chunk.Text
	}
	return out
}

// RawChunk is the stored text of a chunk without its embedding.
type RawChunk struct {
	ID       string
	Source   string
	Text     string
	Sequence int
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a chat exchange.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AssembledContext is the input handed to the answer generator. Field order
// is part of the contract: evidence, then history, then query.
type AssembledContext struct {
	Evidence []string           `json:"evidence"`
	History  []ConversationTurn `json:"history"`
	Query    string             `json:"query"`
}

// Size returns the number of characters the context carries.
func (c AssembledContext) Size() int {
	n := len([]rune(c.Query))
	for _, e := range c.Evidence {
		n += len([]rune(e))
	}
	for _, t := range c.History {
		n += len([]rune(t.Content))
	}
	return n
}
