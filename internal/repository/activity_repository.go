package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"policymitr/internal/model"
)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, entry *model.ActivityLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create activity log failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries across all users.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]model.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []model.ActivityLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list activity logs failed: %w", err)
	}
	return list, nil
}

func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.ActivityLog{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count activity logs failed: %w", err)
	}
	return n, nil
}
