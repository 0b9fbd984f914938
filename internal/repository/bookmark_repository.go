package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"policymitr/internal/model"
)

type BookmarkRepository struct {
	db *gorm.DB
}

func NewBookmarkRepository(db *gorm.DB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

// Toggle adds the bookmark when absent and removes it otherwise. It returns
// whether the policy is bookmarked afterwards.
func (r *BookmarkRepository) Toggle(ctx context.Context, userID uint, policyID string) (bool, error) {
	var bookmarked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND policy_id = ?", userID, policyID).Delete(&model.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		bookmarked = true
		return tx.Create(&model.Bookmark{
			ID:       uuid.NewString(),
			UserID:   userID,
			PolicyID: policyID,
		}).Error
	})
	if err != nil {
		return false, fmt.Errorf("toggle bookmark failed: %w", err)
	}
	return bookmarked, nil
}

func (r *BookmarkRepository) Exists(ctx context.Context, userID uint, policyID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Bookmark{}).
		Where("user_id = ? AND policy_id = ?", userID, policyID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("query bookmark failed: %w", err)
	}
	return n > 0, nil
}

// PolicyIDs returns the set of policies the user has bookmarked.
func (r *BookmarkRepository) PolicyIDs(ctx context.Context, userID uint) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Bookmark{}).
		Where("user_id = ?", userID).
		Pluck("policy_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list bookmarks failed: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
