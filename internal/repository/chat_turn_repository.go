package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"policymitr/internal/model"
)

type ChatTurnRepository struct {
	db *gorm.DB
}

func NewChatTurnRepository(db *gorm.DB) *ChatTurnRepository {
	return &ChatTurnRepository{db: db}
}

// Create is idempotent on the turn ID so redelivered queue messages are
// stored once.
func (r *ChatTurnRepository) Create(ctx context.Context, turn *model.ChatTurn) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(turn).Error
	if err != nil {
		return fmt.Errorf("create chat turn failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest turns of the user first. An empty policyID
// selects turns from every conversation. On equal timestamps the answer sorts
// as newer than its question.
func (r *ChatTurnRepository) ListRecent(ctx context.Context, userID uint, policyID string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if policyID != "" {
		q = q.Where("policy_id = ?", policyID)
	}
	var turns []model.ChatTurn
	if err := q.Order("created_at DESC").Order("role ASC").Order("id DESC").Limit(limit).Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list chat turns failed: %w", err)
	}
	return turns, nil
}

func (r *ChatTurnRepository) DeleteByPolicyID(ctx context.Context, userID uint, policyID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND policy_id = ?", userID, policyID).
		Delete(&model.ChatTurn{}).Error
	if err != nil {
		return fmt.Errorf("delete chat turns failed: %w", err)
	}
	return nil
}
