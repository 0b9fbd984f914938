package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Username          string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email             string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash      string    `gorm:"size:255;not null" json:"-"`
	FullName          string    `gorm:"size:128" json:"full_name"`
	PreferredLanguage string    `gorm:"size:16;default:en" json:"preferred_language"`
	Role              string    `gorm:"size:16;not null;default:user" json:"role"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
