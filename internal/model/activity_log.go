package model

import "time"

// ActivityLog records one user action for the admin views. Details is a
// short human readable note such as the uploaded title or the question.
type ActivityLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Action    string    `gorm:"size:32;not null;index" json:"action_type"`
	PolicyID  string    `gorm:"size:36" json:"policy_id,omitempty"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"precision:6;index" json:"created_at"`
}
