package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/logger"
	"github.com/timmy/jobstore/internal/partitioner"
	"github.com/timmy/jobstore/internal/repository"
)

// Rerun creates a new job from the specification of job jobID with ancestry.previousJobId
// pointing back at it. A full rerun partitions the same data file again. With failedOnly
// set, the new job holds only the items that failed in some phase of the earlier job,
// replayed from their partitioned outcomes in their original order.
func (s *JobService) Rerun(ctx context.Context, jobID int64, failedOnly bool) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, jobID)
	if job.Specification.Type == domain.JobTypeCompacted || job.Type == domain.JobTypeCompacted {
		s.metrics.RecordJobCreated("rejected")
		return nil, illegalRerun(jobID, "job %d is compacted and has no items to rerun", jobID)
	}

	spec := rerunSpecification(job)
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		s.metrics.RecordJobCreated("rejected")
		return nil, err
	}

	partition := s.partitionDataFile
	switch {
	case failedOnly:
		items, err := s.failedItems(ctx, job)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			s.metrics.RecordJobCreated("rejected")
			return nil, illegalRerun(jobID, "job %d has no failed items", jobID)
		}
		partition = s.partitionItems(items)
	case spec.DataFile == domain.EmptyJobDataFile:
		partition = s.partitionEmpty
	}

	logger.With(logger.Fields{
		logger.FieldDataFile: spec.DataFile,
		"failed_only":        failedOnly,
	}).Info(ctx, "Rerunning job")
	return s.create(ctx, spec, partition)
}

// rerunSpecification copies the specification of job and links the copy to it.
func rerunSpecification(job *domain.Job) domain.JobSpecification {
	spec := job.Specification
	if job.Specification.Ancestry != nil {
		ancestry := *job.Specification.Ancestry
		spec.Ancestry = &ancestry
	} else {
		spec.Ancestry = &domain.Ancestry{Datafile: spec.DataFile}
	}
	spec.Ancestry.PreviousJobID = job.ID
	return spec
}

// failedItems returns the partitioned outcome of every item that failed in any phase.
func (s *JobService) failedItems(ctx context.Context, job *domain.Job) ([]domain.ChunkItem, error) {
	chunkIDs, err := s.store.Chunks.ChunkIDs(ctx, job.ID)
	if err != nil {
		return nil, storeError(err, "failed to list chunks of job %d", job.ID)
	}
	var failed []domain.ChunkItem
	for _, chunkID := range chunkIDs {
		items, err := s.store.Chunks.Items(ctx, job.ID, chunkID)
		if err != nil {
			return nil, storeError(err, "failed to load items of chunk %d of job %d", chunkID, job.ID)
		}
		for i := range items {
			if itemFailed(&items[i]) && items[i].PartitioningOutcome != nil {
				failed = append(failed, *items[i].PartitioningOutcome)
			}
		}
	}
	return failed, nil
}

func itemFailed(item *domain.ItemEntity) bool {
	for _, p := range []domain.Phase{domain.PhasePartitioning, domain.PhaseProcessing, domain.PhaseDelivering} {
		if o := item.Outcome(p); o != nil && o.Status == domain.ItemStatusFailure {
			return true
		}
	}
	return false
}

// partitionItems chunks items instead of reading the data file.
func (s *JobService) partitionItems(items []domain.ChunkItem) partitionFunc {
	return func(ctx context.Context, tx *repository.Store, job *domain.Job, _ string) (domain.Diagnostics, error) {
		started := time.Now()
		now := s.now()
		var counts []domain.ItemCounts
		chunker := partitioner.NewChunker(s.cfg.ChunkSize, s.Keys(&job.Specification))
		result, err := chunker.Partition(ctx, job.ID, partitioner.NewItemReader(items), func(chunk *domain.Chunk) error {
			counts = append(counts, domain.CountItems(chunk.Items))
			return tx.Chunks.CreatePartitioned(ctx, chunk, now)
		})
		if err != nil {
			return fatalDiagnostics(err)
		}
		s.metrics.ObservePartitioning(time.Since(started).Seconds())
		s.recordPartitioning(job, result.NumberOfChunks, result.NumberOfItems, counts)
		return nil, nil
	}
}

func illegalRerun(jobID int64, format string, args ...interface{}) error {
	return &domain.Error{Kind: domain.KindConflict, Code: domain.CodeIllegalRerun, JobID: jobID,
		Message: fmt.Sprintf(format, args...)}
}
