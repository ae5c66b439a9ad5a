package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/logger"
	"github.com/timmy/jobstore/internal/metrics"
	"github.com/timmy/jobstore/internal/repository"
	"github.com/timmy/jobstore/internal/storage"
)

// RetentionConfig holds retention windows in days.
type RetentionConfig struct {
	Interval           time.Duration
	SuperTransientDays int
	AccTestDays        int
	TransientDays      int
	TestDays           int
	ExpirationDays     int
	// AbandonedAfterDays purges jobs that never completed once they are this old. Zero disables it.
	AbandonedAfterDays int
}

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Purged    int `json:"purged"`
	Compacted int `json:"compacted"`
	Failed    int `json:"failed"`
}

// RetentionService purges short-lived jobs and compacts long-lived ones.
type RetentionService struct {
	store    *repository.Store
	files    DataFileStore
	logs     LogStore
	metrics  *metrics.Collector
	cfg      RetentionConfig
	now      func() time.Time
	sweeping chan struct{}
}

// NewRetentionService creates a new retention service.
func NewRetentionService(store *repository.Store, files DataFileStore, logs LogStore, collector *metrics.Collector, cfg *RetentionConfig) *RetentionService {
	return &RetentionService{
		store:    store,
		files:    files,
		logs:     logs,
		metrics:  collector,
		cfg:      *cfg,
		now:      utcNow,
		sweeping: make(chan struct{}, 1),
	}
}

// purgeRule selects completed jobs of one type by creation age.
type purgeRule struct {
	jobType domain.JobType
	days    int
}

func (s *RetentionService) purgeRules() []purgeRule {
	return []purgeRule{
		{domain.JobTypeSuperTransient, s.cfg.SuperTransientDays},
		{domain.JobTypeAccTest, s.cfg.AccTestDays},
		{domain.JobTypeTransient, s.cfg.TransientDays},
		{domain.JobTypeTest, s.cfg.TestDays},
	}
}

// Run sweeps every Interval until ctx is done.
func (s *RetentionService) Run(ctx context.Context) {
	ctx = logger.SetComponent(ctx, "retention")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	logger.CtxInfo(ctx, "Starting retention sweeps every %s", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.CtxError(ctx, "Retention sweep failed: %v", err)
			}
		}
	}
}

// Sweep purges and compacts every eligible job once. Jobs that have not completed are
// left alone unless the abandoned-job ceiling is enabled. Concurrent calls wait for each other.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepResult, error) {
	select {
	case s.sweeping <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sweeping }()

	start := time.Now()
	now := s.now()
	res := &SweepResult{}
	completed := true

	for _, rule := range s.purgeRules() {
		if rule.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -rule.days)
		jobType := rule.jobType
		ids, err := s.store.Jobs.IDs(ctx, domain.JobListCriteria{
			Types:         []domain.JobType{jobType},
			CreatedBefore: &cutoff,
			Completed:     &completed,
		})
		if err != nil {
			return res, storeError(err, "failed to select %s jobs for purge", jobType)
		}
		s.each(ctx, ids, res, func(id int64) (bool, error) {
			return s.purge(ctx, id, func(j *domain.Job) bool {
				return j.Type == jobType && j.TimeOfCompletion != nil && j.TimeOfCreation.Before(cutoff)
			})
		}, &res.Purged)
	}

	if s.cfg.ExpirationDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.ExpirationDays)
		ids, err := s.store.Jobs.IDs(ctx, domain.JobListCriteria{
			Types:           []domain.JobType{domain.JobTypePersistent, domain.JobTypePeriodic},
			CompletedBefore: &cutoff,
		})
		if err != nil {
			return res, storeError(err, "failed to select jobs for compaction")
		}
		s.each(ctx, ids, res, func(id int64) (bool, error) {
			return s.compact(ctx, id, cutoff)
		}, &res.Compacted)
	}

	if s.cfg.AbandonedAfterDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.AbandonedAfterDays)
		incomplete := false
		ids, err := s.store.Jobs.IDs(ctx, domain.JobListCriteria{
			CreatedBefore: &cutoff,
			Completed:     &incomplete,
		})
		if err != nil {
			return res, storeError(err, "failed to select abandoned jobs")
		}
		s.each(ctx, ids, res, func(id int64) (bool, error) {
			return s.purge(ctx, id, func(j *domain.Job) bool {
				return j.TimeOfCompletion == nil && j.TimeOfCreation.Before(cutoff)
			})
		}, &res.Purged)
	}

	s.metrics.RecordRetention("purged", res.Purged)
	s.metrics.RecordRetention("compacted", res.Compacted)
	s.metrics.RecordRetention("failed", res.Failed)
	logger.With(logger.Fields{
		"purged":    res.Purged,
		"compacted": res.Compacted,
		"failed":    res.Failed,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Retention sweep finished")
	return res, nil
}

func (s *RetentionService) each(ctx context.Context, ids []int64, res *SweepResult, apply func(int64) (bool, error), counter *int) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		done, err := apply(id)
		if err != nil {
			res.Failed++
			logger.With(logger.Fields{logger.FieldJobID: id}).Error(ctx, "Retention of job failed: %v", err)
			continue
		}
		if done {
			*counter++
		}
	}
}

// purge deletes a job with its chunks and items, then its logs and, when no other job uses
// it, its data file. The condition is checked again under the row lock; a job that no longer
// qualifies is skipped. Logs and data file go only after the row delete has committed, so a
// failed commit never leaves a job pointing at a deleted file.
func (s *RetentionService) purge(ctx context.Context, jobID int64, eligible func(*domain.Job) bool) (bool, error) {
	purged := false
	var dataFile string
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !eligible(job) {
			return nil
		}

		if _, err := tx.Chunks.DeleteForJob(ctx, jobID); err != nil {
			return err
		}
		if dataFile, err = s.unsharedDataFile(ctx, tx, job); err != nil {
			return err
		}
		if err := tx.Jobs.Delete(ctx, jobID); err != nil {
			return err
		}
		purged = true
		return nil
	})
	if err != nil || !purged {
		return false, err
	}
	logger.With(logger.Fields{logger.FieldJobID: jobID}).Info(ctx, "Purged job")
	s.cleanup(ctx, jobID, dataFile)
	return true, nil
}

// unsharedDataFile returns the data file of job when no other job references it, or "".
func (s *RetentionService) unsharedDataFile(ctx context.Context, tx *repository.Store, job *domain.Job) (string, error) {
	urn := job.DataFile
	if urn == "" || urn == domain.EmptyJobDataFile {
		return "", nil
	}
	if _, err := storage.ParseURN(urn); err != nil {
		return "", nil
	}
	shared, err := tx.Jobs.CountByDataFile(ctx, urn, job.ID)
	if err != nil {
		return "", err
	}
	if shared > 0 {
		return "", nil
	}
	return urn, nil
}

// cleanup removes what a committed purge or compaction left outside the database.
// Failures are logged with enough context to remove the leftovers by hand.
func (s *RetentionService) cleanup(ctx context.Context, jobID int64, dataFile string) {
	log := logger.With(logger.Fields{logger.FieldJobID: jobID})
	if err := s.logs.DeleteJobLogs(ctx, jobID); err != nil {
		s.metrics.RecordRetention("cleanup_failed", 1)
		log.Error(ctx, "Failed to delete job logs: %v", err)
	}
	if dataFile == "" {
		return
	}
	if err := s.files.Delete(ctx, dataFile); err != nil {
		s.metrics.RecordRetention("cleanup_failed", 1)
		log.With(logger.Fields{logger.FieldDataFile: dataFile}).Error(ctx, "Failed to delete data file: %v", err)
	}
}

// compact drops the chunks, items and logs of a completed job and marks it COMPACTED.
// The job row and its recorded counts survive.
func (s *RetentionService) compact(ctx context.Context, jobID int64, cutoff time.Time) (bool, error) {
	compacted := false
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if job.Type != domain.JobTypePersistent && job.Type != domain.JobTypePeriodic {
			return nil
		}
		if job.TimeOfCompletion == nil || !job.TimeOfCompletion.Before(cutoff) {
			return nil
		}

		if _, err := tx.Chunks.DeleteForJob(ctx, jobID); err != nil {
			return err
		}
		job.SetType(domain.JobTypeCompacted)
		job.TimeOfLastModification = s.now()
		if err := tx.Jobs.Save(ctx, job); err != nil {
			return err
		}
		compacted = true
		return nil
	})
	if err != nil || !compacted {
		return false, err
	}
	logger.With(logger.Fields{logger.FieldJobID: jobID}).Info(ctx, "Compacted job")
	s.cleanup(ctx, jobID, "")
	return true, nil
}
