package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/logger"
	"github.com/timmy/jobstore/internal/metrics"
	"github.com/timmy/jobstore/internal/queue"
	"github.com/timmy/jobstore/internal/repository"
	"gorm.io/gorm"
)

const maxSubmitAttempts = 3

// ChunkService is the entry point for phase results reported by processors and sinks.
type ChunkService struct {
	store      *repository.Store
	dispatcher queue.Dispatcher
	metrics    *metrics.Collector
	sinkPrefix string
	locks      *jobLocks
	now        func() time.Time
}

// NewChunkService creates a new chunk ingestion service.
func NewChunkService(store *repository.Store, dispatcher queue.Dispatcher, collector *metrics.Collector, sinkPrefix string) *ChunkService {
	return &ChunkService{
		store:      store,
		dispatcher: dispatcher,
		metrics:    collector,
		sinkPrefix: sinkPrefix,
		locks:      newJobLocks(),
		now:        utcNow,
	}
}

// SubmitOutcome tells whether a submission changed the job.
type SubmitOutcome string

const (
	OutcomeAccepted  SubmitOutcome = "accepted"
	OutcomeDuplicate SubmitOutcome = "duplicate"
)

// SubmitResult records the PROCESSED or DELIVERED result of one chunk and returns the job snapshot.
//
// Resubmitting identical content leaves the job unchanged; different content for an already
// recorded (job, chunk, type) is a conflict. Processed chunks are forwarded to the job's sink,
// also on resubmission, so a lost publish is repaired by the caller retrying.
func (s *ChunkService) SubmitResult(ctx context.Context, chunk *domain.Chunk) (*domain.Job, SubmitOutcome, error) {
	phase, ok := chunk.Type.Phase()
	if !ok || chunk.Type == domain.ChunkTypePartitioned {
		s.metrics.RecordChunkSubmitted(string(chunk.Type), "rejected")
		return nil, "", domain.NewValidationError(domain.CodeInvalidChunkType,
			"chunk type must be %s or %s, got %q", domain.ChunkTypeProcessed, domain.ChunkTypeDelivered, chunk.Type)
	}
	ctx = logger.SetJobID(ctx, chunk.JobID)
	ctx = logger.SetChunk(ctx, chunk.ChunkID, string(chunk.Type))

	checksum, err := domain.Checksum(chunk.Items)
	if err != nil {
		return nil, "", domain.NewValidationError(domain.CodeInvalidInput, "chunk items cannot be encoded: %v", err)
	}

	unlock := s.locks.lock(chunk.JobID)
	job, outcome, keys, err := s.record(ctx, chunk, phase, checksum)
	unlock()
	if err != nil {
		outcomeLabel := "failed"
		switch domain.KindOf(err) {
		case domain.KindConflict:
			outcomeLabel = "conflict"
		case domain.KindValidation, domain.KindNotFound:
			outcomeLabel = "rejected"
		}
		s.metrics.RecordChunkSubmitted(string(chunk.Type), outcomeLabel)
		return nil, "", err
	}
	s.metrics.RecordChunkSubmitted(string(chunk.Type), string(outcome))

	if chunk.Type == domain.ChunkTypeProcessed {
		if err := s.forward(ctx, job, chunk, keys); err != nil {
			return job, outcome, err
		}
	}
	return job, outcome, nil
}

// record applies the submission in one transaction, retrying when a concurrent writer
// recorded the same result first.
func (s *ChunkService) record(ctx context.Context, chunk *domain.Chunk, phase domain.Phase, checksum string) (*domain.Job, SubmitOutcome, []string, error) {
	var (
		job       *domain.Job
		outcome   SubmitOutcome
		keys      []string
		completed bool
		counts    domain.ItemCounts
	)
	for attempt := 1; ; attempt++ {
		completed = false
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			var err error
			job, err = tx.Jobs.GetForUpdate(ctx, chunk.JobID)
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewNotFoundError(chunk.JobID)
			}
			if err != nil {
				return err
			}

			header, err := s.validate(ctx, tx, job, chunk)
			if err != nil {
				return err
			}
			keys = []string(header.SequenceKeys)

			existing, err := tx.Chunks.GetResult(ctx, chunk.JobID, chunk.ChunkID, chunk.Type)
			switch {
			case err == nil:
				if existing.Checksum != checksum {
					e := domain.NewConflictError("chunk %d of job %d already has a different %s result",
						chunk.ChunkID, chunk.JobID, chunk.Type)
					e.JobID = chunk.JobID
					return e
				}
				outcome = OutcomeDuplicate
				return nil
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}

			counts = domain.CountItems(chunk.Items)
			if err := tx.Chunks.CreateResult(ctx, &domain.ChunkResult{
				JobID:     chunk.JobID,
				ChunkID:   chunk.ChunkID,
				Type:      chunk.Type,
				Checksum:  checksum,
				Succeeded: counts.Succeeded,
				Failed:    counts.Failed,
				Ignored:   counts.Ignored,
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
			if err := tx.Chunks.SaveOutcomes(ctx, chunk.JobID, chunk.ChunkID, phase, chunk.Items); err != nil {
				return err
			}
			completed = job.RecordChunk(phase, counts, s.now())
			if err := tx.Jobs.Save(ctx, job); err != nil {
				return err
			}
			outcome = OutcomeAccepted
			return nil
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < maxSubmitAttempts {
			logger.CtxDebug(ctx, "Result recorded concurrently, re-evaluating (attempt %d)", attempt)
			continue
		}
		if err != nil {
			return nil, "", nil, storeError(err, "failed to record chunk %d of job %d", chunk.ChunkID, chunk.JobID)
		}
		break
	}

	if outcome == OutcomeAccepted {
		s.metrics.RecordItems(string(phase), counts.Succeeded, counts.Failed, counts.Ignored)
	}
	if completed {
		s.metrics.RecordJobCompleted()
		logger.CtxInfo(ctx, "Job completed")
	}
	logger.With(logger.Fields{
		logger.FieldStatus: string(outcome),
		logger.FieldItems:  len(chunk.Items),
	}).Debug(ctx, "Chunk result recorded")
	return job, outcome, keys, nil
}

// validate checks chunk against the job and its partitioned header.
func (s *ChunkService) validate(ctx context.Context, tx *repository.Store, job *domain.Job, chunk *domain.Chunk) (*domain.ChunkEntity, error) {
	illegal := func(format string, args ...interface{}) error {
		e := domain.NewValidationError(domain.CodeIllegalChunk, format, args...)
		e.JobID = job.ID
		return e
	}

	if chunk.ChunkID < 0 || chunk.ChunkID >= job.NumberOfChunks {
		return nil, illegal("chunk id %d out of range: job %d has %d chunks", chunk.ChunkID, job.ID, job.NumberOfChunks)
	}
	header, err := tx.Chunks.GetChunk(ctx, job.ID, chunk.ChunkID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, illegal("chunk %d of job %d is not stored", chunk.ChunkID, job.ID)
	}
	if err != nil {
		return nil, err
	}
	if len(chunk.Items) != header.NumberOfItems {
		return nil, illegal("chunk %d of job %d has %d items, expected %d",
			chunk.ChunkID, job.ID, len(chunk.Items), header.NumberOfItems)
	}
	for i, item := range chunk.Items {
		if item.ID != i {
			return nil, illegal("item %d of chunk %d has id %d", i, chunk.ChunkID, item.ID)
		}
		if !item.Status.Valid() {
			return nil, illegal("item %d of chunk %d has invalid status %q", i, chunk.ChunkID, item.Status)
		}
	}
	return header, nil
}

// forward publishes a processed chunk to the sink of its job.
func (s *ChunkService) forward(ctx context.Context, job *domain.Job, chunk *domain.Chunk, keys []string) error {
	sink, ok := job.SinkDestination()
	if !ok {
		logger.CtxWarn(ctx, "Job has no sink reference, processed chunk not forwarded")
		return nil
	}
	out := *chunk
	out.SequenceKeys = keys
	return publish(ctx, s.dispatcher, s.metrics, s.sinkPrefix+sink, &out)
}
