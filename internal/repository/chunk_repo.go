package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"gorm.io/gorm"
)

const itemBatchSize = 100

// ChunkRepository handles chunks, their items and recorded phase results.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreatePartitioned stores a partitioned chunk with its items as partitioning outcomes.
func (r *ChunkRepository) CreatePartitioned(ctx context.Context, chunk *domain.Chunk, now time.Time) error {
	entity := &domain.ChunkEntity{
		JobID:                  chunk.JobID,
		ChunkID:                chunk.ChunkID,
		NumberOfItems:          len(chunk.Items),
		SequenceKeys:           domain.StringSet(chunk.SequenceKeys),
		TimeOfCreation:         now,
		TimeOfLastModification: now,
	}
	db := r.db.WithContext(ctx)
	if err := db.Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create chunk %d/%d: %w", chunk.JobID, chunk.ChunkID, err)
	}

	items := make([]domain.ItemEntity, len(chunk.Items))
	for i, item := range chunk.Items {
		items[i] = domain.ItemEntity{JobID: chunk.JobID, ChunkID: chunk.ChunkID, ItemID: item.ID}
		items[i].SetOutcome(domain.PhasePartitioning, item)
	}
	if len(items) > 0 {
		if err := db.CreateInBatches(items, itemBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create items of chunk %d/%d: %w", chunk.JobID, chunk.ChunkID, err)
		}
	}
	return nil
}

// GetChunk retrieves a chunk header. Returns ErrNotFound when missing.
func (r *ChunkRepository) GetChunk(ctx context.Context, jobID int64, chunkID int) (*domain.ChunkEntity, error) {
	var chunk domain.ChunkEntity
	err := r.db.WithContext(ctx).First(&chunk, "job_id = ? AND chunk_id = ?", jobID, chunkID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &chunk, nil
}

// ChunkIDs lists the chunk ids of a job in ascending order.
func (r *ChunkRepository) ChunkIDs(ctx context.Context, jobID int64) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).Model(&domain.ChunkEntity{}).
		Where("job_id = ?", jobID).
		Order("chunk_id ASC").
		Pluck("chunk_id", &ids).Error
	return ids, err
}

// Items returns the items of a chunk ordered by item id.
func (r *ChunkRepository) Items(ctx context.Context, jobID int64, chunkID int) ([]domain.ItemEntity, error) {
	var items []domain.ItemEntity
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND chunk_id = ?", jobID, chunkID).
		Order("item_id ASC").
		Find(&items).Error
	return items, err
}

// LoadChunk assembles the chunk as recorded for phase p.
// Returns ErrNotFound when the chunk does not exist or has no outcome for p.
func (r *ChunkRepository) LoadChunk(ctx context.Context, jobID int64, chunkID int, p domain.Phase) (*domain.Chunk, error) {
	header, err := r.GetChunk(ctx, jobID, chunkID)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, jobID, chunkID)
	if err != nil {
		return nil, err
	}

	chunk := &domain.Chunk{
		JobID:        jobID,
		ChunkID:      chunkID,
		Type:         domain.ChunkTypeOf(p),
		Items:        make([]domain.ChunkItem, 0, len(items)),
		SequenceKeys: []string(header.SequenceKeys),
	}
	for i := range items {
		outcome := items[i].Outcome(p)
		if outcome == nil {
			return nil, ErrNotFound
		}
		chunk.Items = append(chunk.Items, *outcome)
	}
	return chunk, nil
}

// SaveOutcomes records the items of a chunk as the outcomes of phase p.
func (r *ChunkRepository) SaveOutcomes(ctx context.Context, jobID int64, chunkID int, p domain.Phase, items []domain.ChunkItem) error {
	column := outcomeColumn(p)
	db := r.db.WithContext(ctx)
	for _, item := range items {
		res := db.Model(&domain.ItemEntity{}).
			Where("job_id = ? AND chunk_id = ? AND item_id = ?", jobID, chunkID, item.ID).
			Update(column, item)
		if res.Error != nil {
			return fmt.Errorf("failed to save item %d/%d/%d: %w", jobID, chunkID, item.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("item %d/%d/%d: %w", jobID, chunkID, item.ID, ErrNotFound)
		}
	}
	return db.Model(&domain.ChunkEntity{}).
		Where("job_id = ? AND chunk_id = ?", jobID, chunkID).
		Update("time_of_last_modification", time.Now().UTC()).Error
}

// GetResult retrieves a recorded phase result. Returns ErrNotFound when none exists.
func (r *ChunkRepository) GetResult(ctx context.Context, jobID int64, chunkID int, chunkType domain.ChunkType) (*domain.ChunkResult, error) {
	var result domain.ChunkResult
	err := r.db.WithContext(ctx).
		First(&result, "job_id = ? AND chunk_id = ? AND type = ?", jobID, chunkID, chunkType).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

// CreateResult records a phase result. A second result with the same key fails with gorm.ErrDuplicatedKey.
func (r *ChunkRepository) CreateResult(ctx context.Context, result *domain.ChunkResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// Results returns every recorded result of a job.
func (r *ChunkRepository) Results(ctx context.Context, jobID int64) ([]domain.ChunkResult, error) {
	var results []domain.ChunkResult
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("chunk_id ASC").
		Find(&results).Error
	return results, err
}

// CountItems counts the stored items of a job.
func (r *ChunkRepository) CountItems(ctx context.Context, jobID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ItemEntity{}).Where("job_id = ?", jobID).Count(&count).Error
	return count, err
}

// DeleteForJob removes items, chunks and results of a job and returns the number of chunks removed.
func (r *ChunkRepository) DeleteForJob(ctx context.Context, jobID int64) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("job_id = ?", jobID).Delete(&domain.ItemEntity{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete items of job %d: %w", jobID, err)
	}
	if err := db.Where("job_id = ?", jobID).Delete(&domain.ChunkResult{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete results of job %d: %w", jobID, err)
	}
	res := db.Where("job_id = ?", jobID).Delete(&domain.ChunkEntity{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete chunks of job %d: %w", jobID, res.Error)
	}
	return res.RowsAffected, nil
}

func outcomeColumn(p domain.Phase) string {
	switch p {
	case domain.PhaseProcessing:
		return "processing_outcome"
	case domain.PhaseDelivering:
		return "delivering_outcome"
	default:
		return "partitioning_outcome"
	}
}
