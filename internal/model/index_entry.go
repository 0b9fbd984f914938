package model

import (
	"encoding/json"
	"time"
)

// IndexCollection records a vector collection and the dimension fixed by its
// first insert.
type IndexCollection struct {
	Name      string    `gorm:"primaryKey;size:191" json:"name"`
	Dimension int       `gorm:"not null" json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexEntry stores one chunk of a collection with its embedding.
// Embedding is stored as JSON array of float32 for portability.
type IndexEntry struct {
	Collection string    `gorm:"primaryKey;size:191" json:"collection"`
	ChunkID    string    `gorm:"primaryKey;size:191" json:"chunk_id"`
	Source     string    `gorm:"size:191;not null;index" json:"source"`
	Sequence   int       `gorm:"not null" json:"sequence"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  string    `gorm:"type:text" json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (e *IndexEntry) EmbeddingVector() []float32 {
	if e.Embedding == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(e.Embedding), &v); err != nil {
		return nil
	}
	return v
}

// SetEmbedding stores the embedding as JSON.
func (e *IndexEntry) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		e.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	e.Embedding = string(b)
}
