package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"policymitr/internal/model"
	"policymitr/internal/rag"
)

// Persistent stores collections in the index_collections and index_entries
// tables. Similarity is computed in process over the candidate rows, the same
// brute-force scan the memory index performs.
type Persistent struct {
	db *gorm.DB
}

func NewPersistent(db *gorm.DB) *Persistent {
	return &Persistent{db: db}
}

// Migrate creates the index tables.
func (p *Persistent) Migrate() error {
	if err := p.db.AutoMigrate(&model.IndexCollection{}, &model.IndexEntry{}); err != nil {
		return fmt.Errorf("migrate vector index failed: %w", err)
	}
	return nil
}

func (p *Persistent) Insert(ctx context.Context, collection string, chunk rag.Chunk) error {
	if len(chunk.Vector) == 0 {
		return &rag.IndexCorruptionError{Collection: collection, ChunkID: chunk.ID}
	}
	if i := rag.NonFiniteComponent(chunk.Vector); i >= 0 {
		return &rag.IndexCorruptionError{
			Collection: collection,
			ChunkID:    chunk.ID,
			Got:        len(chunk.Vector),
			NonFinite:  true,
			Component:  i,
		}
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		col := model.IndexCollection{Name: collection, Dimension: len(chunk.Vector)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&col).Error; err != nil {
			return fmt.Errorf("create index collection failed: %w", err)
		}
		var stored model.IndexCollection
		if err := tx.Where("name = ?", collection).Take(&stored).Error; err != nil {
			return fmt.Errorf("load index collection failed: %w", err)
		}
		if stored.Dimension != len(chunk.Vector) {
			return &rag.IndexCorruptionError{
				Collection: collection,
				ChunkID:    chunk.ID,
				Want:       stored.Dimension,
				Got:        len(chunk.Vector),
			}
		}

		entry := model.IndexEntry{
			Collection: collection,
			ChunkID:    chunk.ID,
			Source:     chunk.Source,
			Sequence:   chunk.Sequence,
			Text:       chunk.Text,
		}
		entry.SetEmbedding(chunk.Vector)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
			return fmt.Errorf("upsert index entry failed: %w", err)
		}
		return nil
	})
}

func (p *Persistent) Query(ctx context.Context, collection string, vector []float32, k int, opts ...rag.QueryOption) (rag.QueryResult, error) {
	db := p.db.WithContext(ctx)
	if err := p.requireCollection(db, collection); err != nil {
		return nil, err
	}
	options := rag.ApplyQueryOptions(opts...)

	q := db.Where("collection = ?", collection)
	if options.Source != "" {
		q = q.Where("source = ?", options.Source)
	}
	var entries []model.IndexEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list index entries failed: %w", err)
	}

	candidates := make([]rag.ScoredChunk, 0, len(entries))
	for i := range entries {
		vec := entries[i].EmbeddingVector()
		candidates = append(candidates, rag.ScoredChunk{
			Chunk: rag.Chunk{
				ID:       entries[i].ChunkID,
				Text:     entries[i].Text,
				Source:   entries[i].Source,
				Sequence: entries[i].Sequence,
				Vector:   vec,
			},
			Score: rag.CosineSimilarity(vector, vec),
		})
	}
	return rag.TopK(candidates, k), nil
}

func (p *Persistent) DeleteSource(ctx context.Context, collection, source string) error {
	db := p.db.WithContext(ctx)
	if err := p.requireCollection(db, collection); err != nil {
		return err
	}
	if err := db.Where("collection = ? AND source = ?", collection, source).Delete(&model.IndexEntry{}).Error; err != nil {
		return fmt.Errorf("delete index source failed: %w", err)
	}
	return nil
}

func (p *Persistent) Count(ctx context.Context, collection string) (int, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&model.IndexEntry{}).Where("collection = ?", collection).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count index entries failed: %w", err)
	}
	return int(n), nil
}

func (p *Persistent) requireCollection(db *gorm.DB, collection string) error {
	var col model.IndexCollection
	err := db.Where("name = ?", collection).Take(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rag.ErrCollectionNotFound
	}
	if err != nil {
		return fmt.Errorf("load index collection failed: %w", err)
	}
	return nil
}
