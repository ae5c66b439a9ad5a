package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/logger"
	"github.com/timmy/jobstore/internal/metrics"
	"github.com/timmy/jobstore/internal/partitioner"
	"github.com/timmy/jobstore/internal/queue"
	"github.com/timmy/jobstore/internal/repository"
	"github.com/timmy/jobstore/internal/storage"
)

// JobConfig holds configuration for the job service.
type JobConfig struct {
	ChunkSize             int
	VerifyByteSize        bool
	ProcessingDestination string
	SinkPrefix            string
}

// JobService creates jobs and answers queries about them.
type JobService struct {
	store      *repository.Store
	resolver   *ReferenceResolver
	files      DataFileStore
	dispatcher queue.Dispatcher
	metrics    *metrics.Collector
	cfg        JobConfig

	// Keys builds the sequence key generator for a job.
	Keys func(spec *domain.JobSpecification) partitioner.KeyGenerator
	now  func() time.Time
}

// NewJobService creates a new job service.
func NewJobService(
	store *repository.Store,
	resolver *ReferenceResolver,
	files DataFileStore,
	dispatcher queue.Dispatcher,
	collector *metrics.Collector,
	cfg *JobConfig,
) *JobService {
	c := *cfg
	if c.ChunkSize <= 0 {
		c.ChunkSize = domain.ChunkRecordCountUpperBound
	}
	return &JobService{
		store:      store,
		resolver:   resolver,
		files:      files,
		dispatcher: dispatcher,
		metrics:    collector,
		cfg:        c,
		Keys: func(spec *domain.JobSpecification) partitioner.KeyGenerator {
			return partitioner.SubmitterKeys{Submitter: spec.SubmitterID}
		},
		now: utcNow,
	}
}

// partitionFunc fills a freshly inserted job with its partitioned chunks.
// Diagnostics it returns abort the job; an error aborts the request.
type partitionFunc func(ctx context.Context, tx *repository.Store, job *domain.Job, splitter string) (domain.Diagnostics, error)

// Create validates spec, resolves its references, partitions its data file and dispatches
// every chunk for processing. A job whose references or data cannot be resolved is stored
// with fatalError set and returned without error.
func (s *JobService) Create(ctx context.Context, spec domain.JobSpecification) (*domain.Job, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		s.metrics.RecordJobCreated("rejected")
		return nil, err
	}
	if spec.DataFile == domain.EmptyJobDataFile {
		s.metrics.RecordJobCreated("rejected")
		return nil, domain.NewValidationError(domain.CodeInvalidJobSpecification,
			"data file %s is reserved for empty jobs", domain.EmptyJobDataFile)
	}
	return s.create(ctx, spec, s.partitionDataFile)
}

// CreateEmpty creates a job without data. Only PERIODIC jobs referencing the reserved
// empty-job data file are accepted.
func (s *JobService) CreateEmpty(ctx context.Context, spec domain.JobSpecification) (*domain.Job, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		s.metrics.RecordJobCreated("rejected")
		return nil, err
	}
	if spec.Type != domain.JobTypePeriodic {
		s.metrics.RecordJobCreated("rejected")
		return nil, domain.NewValidationError(domain.CodeInvalidJobSpecification,
			"empty jobs must be of type %s, got %s", domain.JobTypePeriodic, spec.Type)
	}
	if spec.DataFile != domain.EmptyJobDataFile {
		s.metrics.RecordJobCreated("rejected")
		return nil, domain.NewValidationError(domain.CodeInvalidJobSpecification,
			"empty jobs must reference data file %s, got %q", domain.EmptyJobDataFile, spec.DataFile)
	}
	return s.create(ctx, spec, s.partitionEmpty)
}

func (s *JobService) create(ctx context.Context, spec domain.JobSpecification, partition partitionFunc) (*domain.Job, error) {
	start := time.Now()
	ctx = logger.SetComponent(ctx, "job-registry")

	resolution := s.resolver.Resolve(ctx, &spec)
	job := domain.NewJob(spec, s.now())
	job.FlowStoreReferences = resolution.References
	job.Diagnostics = resolution.Diagnostics

	if resolution.Diagnostics.HasFatal() {
		return s.persistFailed(ctx, job, nil)
	}

	var diags domain.Diagnostics
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		var err error
		diags, err = partition(ctx, tx, job, resolution.RecordSplitter)
		if err != nil {
			return err
		}
		if diags.HasFatal() {
			return errAbort
		}
		return tx.Jobs.Save(ctx, job)
	})
	switch {
	case errors.Is(err, errAbort):
		job.ID = 0
		return s.persistFailed(ctx, job, diags)
	case err != nil:
		s.metrics.RecordJobCreated("failed")
		return nil, storeError(err, "failed to create job")
	}

	ctx = logger.SetJobID(ctx, job.ID)
	elapsed := time.Since(start)
	var perItem float64
	if job.NumberOfItems > 0 {
		perItem = float64(elapsed.Milliseconds()) / float64(job.NumberOfItems)
	}
	logger.With(logger.Fields{
		logger.FieldItems:  job.NumberOfItems,
		logger.FieldChunks: job.NumberOfChunks,
		"avg_ms_per_item":  perItem,
	}).WithDuration(elapsed.Milliseconds()).Info(ctx, "TIMER job created")
	s.metrics.RecordJobCreated("created")

	if err := s.dispatchPartitioned(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

var errAbort = errors.New("job aborted")

// persistFailed stores job as failed with diags appended so operators can see why.
func (s *JobService) persistFailed(ctx context.Context, job *domain.Job, diags domain.Diagnostics) (*domain.Job, error) {
	job.Abort(diags, s.now())
	if err := s.store.Jobs.Create(ctx, job); err != nil {
		s.metrics.RecordJobCreated("failed")
		return nil, storeError(err, "failed to store failed job")
	}
	logger.With(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldCount: len(job.Diagnostics),
	}).Warn(ctx, "Job failed with fatal diagnostics")
	s.metrics.RecordJobCreated("failed")
	return job, nil
}

func (s *JobService) partitionDataFile(ctx context.Context, tx *repository.Store, job *domain.Job, splitterName string) (domain.Diagnostics, error) {
	spec := &job.Specification
	fatal := func(format string, args ...interface{}) (domain.Diagnostics, error) {
		return domain.Diagnostics{domain.NewFatalDiagnostic(fmt.Sprintf(format, args...))}, nil
	}

	splitter, err := partitioner.ParseSplitter(splitterName)
	if err != nil {
		return fatal("%s", err.Error())
	}
	if _, err := storage.ParseURN(spec.DataFile); err != nil {
		return fatal("Invalid file-store URN: %s", spec.DataFile)
	}
	body, size, err := s.files.Open(ctx, spec.DataFile)
	if err != nil {
		logger.With(logger.Fields{logger.FieldDataFile: spec.DataFile}).Warn(ctx, "Could not open data file: %v", err)
		return fatal("Could not get input stream for data file: %s", spec.DataFile)
	}
	defer body.Close()

	reader, err := partitioner.NewReader(splitter, body, spec.Charset, spec.HasTransfile())
	if err != nil {
		return fatalDiagnostics(err)
	}

	started := time.Now()
	now := s.now()
	var counts []domain.ItemCounts
	chunker := partitioner.NewChunker(s.cfg.ChunkSize, s.Keys(spec))
	result, err := chunker.Partition(ctx, job.ID, reader, func(chunk *domain.Chunk) error {
		counts = append(counts, domain.CountItems(chunk.Items))
		return tx.Chunks.CreatePartitioned(ctx, chunk, now)
	})
	if err != nil {
		return fatalDiagnostics(err)
	}
	s.metrics.ObservePartitioning(time.Since(started).Seconds())

	if s.cfg.VerifyByteSize && size >= 0 && result.BytesRead != size {
		logger.CtxWarn(ctx, "Byte size mismatch for %s: read %d, stored %d", spec.DataFile, result.BytesRead, size)
		return fatal("Partitioning succeeded but validation 'compareByteSize' failed: read %d bytes, data file has %d",
			result.BytesRead, size)
	}

	s.recordPartitioning(job, result.NumberOfChunks, result.NumberOfItems, counts)
	return nil, nil
}

func (s *JobService) partitionEmpty(ctx context.Context, tx *repository.Store, job *domain.Job, _ string) (domain.Diagnostics, error) {
	chunk := partitioner.EmptyJobChunk(job.ID, uuid.NewString())
	if err := tx.Chunks.CreatePartitioned(ctx, chunk, s.now()); err != nil {
		return nil, err
	}
	s.recordPartitioning(job, 1, 1, []domain.ItemCounts{domain.CountItems(chunk.Items)})
	return nil, nil
}

func (s *JobService) recordPartitioning(job *domain.Job, chunks, items int, counts []domain.ItemCounts) {
	job.NumberOfChunks = chunks
	job.NumberOfItems = items
	now := s.now()
	for _, c := range counts {
		job.RecordChunk(domain.PhasePartitioning, c, now)
	}
}

// fatalDiagnostics turns a partitioning failure into job diagnostics.
// Errors that are not data errors (store failures, cancellation) are returned as is.
func fatalDiagnostics(err error) (domain.Diagnostics, error) {
	var fe *partitioner.FatalError
	if errors.As(err, &fe) {
		return domain.Diagnostics{domain.NewFatalDiagnostic(fe.Error())}, nil
	}
	return nil, err
}

// dispatchPartitioned publishes every partitioned chunk of job to the processing destination.
func (s *JobService) dispatchPartitioned(ctx context.Context, job *domain.Job) error {
	for chunkID := 0; chunkID < job.NumberOfChunks; chunkID++ {
		chunk, err := s.store.Chunks.LoadChunk(ctx, job.ID, chunkID, domain.PhasePartitioning)
		if err != nil {
			return storeError(err, "failed to load chunk %d of job %d", chunkID, job.ID)
		}
		if err := s.publish(ctx, s.cfg.ProcessingDestination, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *JobService) publish(ctx context.Context, destination string, chunk *domain.Chunk) error {
	return publish(ctx, s.dispatcher, s.metrics, destination, chunk)
}

// Get returns the job with id.
func (s *JobService) Get(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := s.store.Jobs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewNotFoundError(id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get job %d", id)
	}
	return job, nil
}

// List returns the jobs matching criteria, newest first.
func (s *JobService) List(ctx context.Context, criteria domain.JobListCriteria) ([]domain.Job, error) {
	if criteria.Limit < 0 || criteria.Offset < 0 {
		return nil, domain.NewValidationError(domain.CodeInvalidInput, "limit and offset must not be negative")
	}
	jobs, err := s.store.Jobs.List(ctx, criteria)
	if err != nil {
		return nil, storeError(err, "failed to list jobs")
	}
	return jobs, nil
}

// Chunk returns a chunk of a job as recorded for phase p.
func (s *JobService) Chunk(ctx context.Context, jobID int64, chunkID int, p domain.Phase) (*domain.Chunk, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if chunkID < 0 || chunkID >= job.NumberOfChunks {
		return nil, &domain.Error{Kind: domain.KindNotFound, Code: domain.CodeIllegalChunk, JobID: jobID,
			Message: fmt.Sprintf("job %d has no chunk %d", jobID, chunkID)}
	}
	chunk, err := s.store.Chunks.LoadChunk(ctx, jobID, chunkID, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.KindNotFound, Code: domain.CodeIllegalChunk, JobID: jobID,
			Message: fmt.Sprintf("chunk %d of job %d has no %s result", chunkID, jobID, domain.ChunkTypeOf(p))}
	}
	if err != nil {
		return nil, storeError(err, "failed to load chunk %d of job %d", chunkID, jobID)
	}
	return chunk, nil
}

// Redispatch republishes every chunk of a job whose next stage has not reported back:
// chunks without a PROCESSED result go to processing again, processed chunks without a
// DELIVERED result go to the sink again. It returns the number of chunks published.
func (s *JobService) Redispatch(ctx context.Context, jobID int64) (int, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	ctx = logger.SetJobID(ctx, jobID)
	if job.FatalError || job.Completed() {
		return 0, nil
	}

	results, err := s.store.Chunks.Results(ctx, jobID)
	if err != nil {
		return 0, storeError(err, "failed to load results of job %d", jobID)
	}
	recorded := make(map[int]map[domain.ChunkType]bool, len(results))
	for _, r := range results {
		if recorded[r.ChunkID] == nil {
			recorded[r.ChunkID] = map[domain.ChunkType]bool{}
		}
		recorded[r.ChunkID][r.Type] = true
	}

	sink, hasSink := job.SinkDestination()
	published := 0
	for chunkID := 0; chunkID < job.NumberOfChunks; chunkID++ {
		var (
			phase       domain.Phase
			destination string
		)
		switch {
		case !recorded[chunkID][domain.ChunkTypeProcessed]:
			phase, destination = domain.PhasePartitioning, s.cfg.ProcessingDestination
		case !recorded[chunkID][domain.ChunkTypeDelivered] && hasSink:
			phase, destination = domain.PhaseProcessing, s.cfg.SinkPrefix+sink
		default:
			continue
		}
		chunk, err := s.store.Chunks.LoadChunk(ctx, jobID, chunkID, phase)
		if err != nil {
			return published, storeError(err, "failed to load chunk %d of job %d", chunkID, jobID)
		}
		if err := s.publish(ctx, destination, chunk); err != nil {
			return published, err
		}
		published++
	}

	logger.With(logger.Fields{logger.FieldChunks: published}).Info(ctx, "Redispatched pending chunks")
	return published, nil
}

// publish sends chunk to destination and maps broker failures to infrastructure errors.
func publish(ctx context.Context, d queue.Dispatcher, m *metrics.Collector, destination string, chunk *domain.Chunk) error {
	if err := d.Publish(ctx, destination, chunk); err != nil {
		m.RecordDispatchFailure()
		logger.With(logger.Fields{
			logger.FieldJobID:   chunk.JobID,
			logger.FieldChunkID: chunk.ChunkID,
		}).Error(ctx, "Failed to publish chunk to %s: %v", destination, err)
		e := domain.NewInfrastructureError(domain.CodeBrokerUnavailable, err,
			"failed to publish chunk %d of job %d", chunk.ChunkID, chunk.JobID)
		e.JobID = chunk.JobID
		return e
	}
	return nil
}

// storeError keeps *domain.Error values and wraps everything else as a store failure.
func storeError(err error, format string, args ...interface{}) error {
	if _, ok := domain.AsError(err); ok {
		return err
	}
	return domain.NewInfrastructureError(domain.CodeStoreUnavailable, err, format, args...)
}
