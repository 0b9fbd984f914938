package model

import "time"

type Policy struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Title           string    `gorm:"size:256;not null" json:"title"`
	OriginalText    string    `gorm:"type:longtext" json:"original_text,omitempty"`
	Summary         string    `gorm:"type:text" json:"summary"`
	Simplified      string    `gorm:"type:text" json:"simplified"`
	Category        string    `gorm:"size:64;index" json:"category"`
	DifficultyScore int       `json:"difficulty_score"`
	Language        string    `gorm:"size:16" json:"language"`
	ChunkCount      int       `json:"chunk_count"`
	IndexedCount    int       `json:"indexed_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Clauses      []Clause `gorm:"foreignKey:PolicyID" json:"clauses,omitempty"`
	IsBookmarked bool     `gorm:"-" json:"is_bookmarked"`
}

type Clause struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	PolicyID    string `gorm:"size:36;not null;index" json:"policy_id"`
	Number      int    `gorm:"column:clause_number;not null" json:"clause_number"`
	Text        string `gorm:"column:clause_text;type:text;not null" json:"clause_text"`
	Explanation string `gorm:"type:text" json:"explanation"`
}

type Bookmark struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_bookmark_user_policy" json:"user_id"`
	PolicyID  string    `gorm:"size:36;not null;uniqueIndex:idx_bookmark_user_policy" json:"policy_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PolicyChunk is the raw text of a chunk, kept outside the vector index so
// retrieval can fall back to keyword scoring.
type PolicyChunk struct {
	ID         string    `gorm:"primaryKey;size:191" json:"id"`
	Collection string    `gorm:"size:191;not null;index:idx_chunk_collection_source" json:"collection"`
	PolicyID   string    `gorm:"size:36;not null;index:idx_chunk_collection_source" json:"policy_id"`
	Sequence   int       `gorm:"not null" json:"sequence"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
