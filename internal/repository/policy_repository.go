package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"policymitr/internal/model"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create stores the policy together with its clauses.
func (r *PolicyRepository) Create(ctx context.Context, policy *model.Policy) error {
	if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
		return fmt.Errorf("create policy failed: %w", err)
	}
	return nil
}

func (r *PolicyRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Policy, error) {
	var list []model.Policy
	err := r.db.WithContext(ctx).
		Omit("original_text").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list policies failed: %w", err)
	}
	return list, nil
}

func (r *PolicyRepository) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Policy, error) {
	var policy model.Policy
	err := r.db.WithContext(ctx).
		Preload("Clauses", func(db *gorm.DB) *gorm.DB { return db.Order("clause_number ASC") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get policy failed: %w", err)
	}
	return &policy, nil
}

func (r *PolicyRepository) UpdateIndexCounts(ctx context.Context, id string, chunks, indexed int) error {
	err := r.db.WithContext(ctx).Model(&model.Policy{}).
		Where("id = ?", id).
		Updates(map[string]any{"chunk_count": chunks, "indexed_count": indexed}).Error
	if err != nil {
		return fmt.Errorf("update policy index counts failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the policy, its clauses and every bookmark on it.
func (r *PolicyRepository) DeleteByIDAndUserID(ctx context.Context, id string, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Policy{})
		if res.Error != nil {
			return fmt.Errorf("delete policy failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("policy_id = ?", id).Delete(&model.Clause{}).Error; err != nil {
			return fmt.Errorf("delete policy clauses failed: %w", err)
		}
		if err := tx.Where("policy_id = ?", id).Delete(&model.Bookmark{}).Error; err != nil {
			return fmt.Errorf("delete policy bookmarks failed: %w", err)
		}
		return nil
	})
}

func (r *PolicyRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Policy{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count policies failed: %w", err)
	}
	return n, nil
}

// CountBy groups every policy by column, which must be "category" or
// "language". Empty values are reported as "Unknown".
func (r *PolicyRepository) CountBy(ctx context.Context, column string) (map[string]int64, error) {
	if column != "category" && column != "language" {
		return nil, fmt.Errorf("count policies by %q: unsupported column", column)
	}
	var rows []struct {
		Bucket string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Policy{}).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count policies by %s failed: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		key := row.Bucket
		if key == "" {
			key = "Unknown"
		}
		out[key] += row.Total
	}
	return out, nil
}
