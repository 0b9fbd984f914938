package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"policymitr/internal/model"
	"policymitr/internal/rag"
)

// ChunkRepository keeps the raw text of every chunk. It is the lexical
// fallback's view of a collection when the vector index cannot answer.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.PolicyChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, 100).Error; err != nil {
		return fmt.Errorf("create policy chunks batch failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByPolicyID(ctx context.Context, collection, policyID string) error {
	err := r.db.WithContext(ctx).
		Where("collection = ? AND policy_id = ?", collection, policyID).
		Delete(&model.PolicyChunk{}).Error
	if err != nil {
		return fmt.Errorf("delete policy chunks failed: %w", err)
	}
	return nil
}

// RawChunks implements rag.ChunkSource.
func (r *ChunkRepository) RawChunks(ctx context.Context, collection, source string) ([]rag.RawChunk, error) {
	q := r.db.WithContext(ctx).Where("collection = ?", collection)
	if source != "" {
		q = q.Where("policy_id = ?", source)
	}
	var rows []model.PolicyChunk
	if err := q.Order("policy_id ASC").Order("sequence ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list policy chunks failed: %w", err)
	}
	out := make([]rag.RawChunk, len(rows))
	for i, row := range rows {
		out[i] = rag.RawChunk{
			ID:       row.ID,
			Source:   row.PolicyID,
			Text:     row.Text,
			Sequence: row.Sequence,
		}
	}
	return out, nil
}

var _ rag.ChunkSource = (*ChunkRepository)(nil)
