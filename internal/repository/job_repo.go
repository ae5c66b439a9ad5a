package repository

import (
	"context"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// JobRepository handles job rows.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job and assigns its id.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save writes every column of job.
func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its id.
// Returns ErrNotFound when no such job exists.
func (r *JobRepository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// GetForUpdate retrieves a job and locks its row until the surrounding transaction ends.
// Dialects without row locks ignore the locking clause.
func (r *JobRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&job, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// List returns jobs matching criteria, newest first.
func (r *JobRepository) List(ctx context.Context, criteria domain.JobListCriteria) ([]domain.Job, error) {
	limit := criteria.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var jobs []domain.Job
	err := r.filter(r.db.WithContext(ctx), criteria).
		Order("id DESC").
		Limit(limit).
		Offset(criteria.Offset).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// IDs returns the ids of every job matching criteria in ascending order. Limit and offset are ignored.
func (r *JobRepository) IDs(ctx context.Context, criteria domain.JobListCriteria) ([]int64, error) {
	var ids []int64
	err := r.filter(r.db.WithContext(ctx).Model(&domain.Job{}), criteria).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountByDataFile counts jobs other than excludeID that reference dataFile.
func (r *JobRepository) CountByDataFile(ctx context.Context, dataFile string, excludeID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("data_file = ? AND id <> ?", dataFile, excludeID).
		Count(&count).Error
	return count, err
}

// Delete removes the job row.
func (r *JobRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&domain.Job{}, "id = ?", id).Error
}

func (r *JobRepository) filter(q *gorm.DB, c domain.JobListCriteria) *gorm.DB {
	if c.JobID > 0 {
		q = q.Where("id = ?", c.JobID)
	}
	if len(c.Types) > 0 {
		q = q.Where("type IN ?", c.Types)
	}
	if c.SubmitterID > 0 {
		q = q.Where("submitter_id = ?", c.SubmitterID)
	}
	if c.DataFile != "" {
		q = q.Where("data_file = ?", c.DataFile)
	}
	if c.CreatedBefore != nil {
		q = q.Where("time_of_creation < ?", utc(*c.CreatedBefore))
	}
	if c.CreatedAfter != nil {
		q = q.Where("time_of_creation > ?", utc(*c.CreatedAfter))
	}
	if c.CompletedBefore != nil {
		q = q.Where("time_of_completion IS NOT NULL AND time_of_completion < ?", utc(*c.CompletedBefore))
	}
	if c.Completed != nil {
		if *c.Completed {
			q = q.Where("time_of_completion IS NOT NULL")
		} else {
			q = q.Where("time_of_completion IS NULL")
		}
	}
	if c.FatalError != nil {
		q = q.Where("fatal_error = ?", *c.FatalError)
	}
	return q
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
