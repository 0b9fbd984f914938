package model

import "time"

// ChatTurn is one persisted chat message. PolicyID is empty for general
// questions.
type ChatTurn struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_turn_user_created" json:"user_id"`
	PolicyID  string    `gorm:"size:36;index" json:"policy_id,omitempty"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"precision:6;index:idx_turn_user_created" json:"created_at"`
}
