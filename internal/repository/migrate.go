package repository

import (
	"fmt"

	"gorm.io/gorm"

	"policymitr/internal/model"
)

// Migrate creates or updates the application tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Policy{},
		&model.Clause{},
		&model.Bookmark{},
		&model.PolicyChunk{},
		&model.ChatTurn{},
		&model.ActivityLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
