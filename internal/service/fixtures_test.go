package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/flowstore"
	"github.com/timmy/jobstore/internal/queue"
	"github.com/timmy/jobstore/internal/repository"
	"github.com/timmy/jobstore/internal/repository/repotest"
)

const (
	processorQueue = "processor"
	sinkPrefix     = "sink."
	sinkName       = "broend"
)

type fakeFlowStore struct {
	splitter     string
	disabled     bool
	submitterErr error
	binderErr    error
	flowErr      error
	sinkErr      error
}

func (f *fakeFlowStore) GetSubmitter(_ context.Context, number int64) (*flowstore.Submitter, error) {
	if f.submitterErr != nil {
		return nil, f.submitterErr
	}
	s := &flowstore.Submitter{ID: 1, Version: 1}
	s.Content.Number = number
	s.Content.Name = "submitter"
	s.Content.Enabled = !f.disabled
	return s, nil
}

func (f *fakeFlowStore) GetFlowBinder(_ context.Context, _, _, _ string, _ int64, _ string) (*flowstore.FlowBinder, error) {
	if f.binderErr != nil {
		return nil, f.binderErr
	}
	return &flowstore.FlowBinder{ID: 2, Version: 3, Content: flowstore.FlowBinderContent{
		Name: "binder", RecordSplitter: f.splitter, FlowID: 10, SinkID: 20,
	}}, nil
}

func (f *fakeFlowStore) GetFlow(_ context.Context, id int64) (*flowstore.Flow, error) {
	if f.flowErr != nil {
		return nil, f.flowErr
	}
	flow := &flowstore.Flow{ID: id, Version: 1}
	flow.Content.Name = "flow"
	return flow, nil
}

func (f *fakeFlowStore) GetSink(_ context.Context, id int64) (*flowstore.Sink, error) {
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	sink := &flowstore.Sink{ID: id, Version: 1}
	sink.Content.Name = sinkName
	return sink, nil
}

type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	sizes   map[string]int64
	deleted []string
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}, sizes: map[string]int64{}}
}

func (m *memFiles) put(urn string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[urn] = data
}

func (m *memFiles) Open(_ context.Context, urn string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[urn]
	if !ok {
		return nil, 0, fmt.Errorf("no such file %s", urn)
	}
	size := int64(len(data))
	if s, ok := m.sizes[urn]; ok {
		size = s
	}
	return io.NopCloser(bytes.NewReader(data)), size, nil
}

func (m *memFiles) Delete(_ context.Context, urn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, urn)
	m.deleted = append(m.deleted, urn)
	return nil
}

func (m *memFiles) exists(urn string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[urn]
	return ok
}

type fakeLogStore struct {
	mu      sync.Mutex
	deleted []int64
	err     error
	// onDelete, when set, runs before the deletion is recorded.
	onDelete func(jobID int64)
}

func (f *fakeLogStore) DeleteJobLogs(_ context.Context, jobID int64) error {
	if f.onDelete != nil {
		f.onDelete(jobID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, jobID)
	return nil
}

type harness struct {
	store      *repository.Store
	flow       *fakeFlowStore
	files      *memFiles
	logs       *fakeLogStore
	dispatcher *queue.MemoryDispatcher
	jobs       *JobService
	chunks     *ChunkService
	retention  *RetentionService

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      repository.NewStore(repotest.Open(t)),
		flow:       &fakeFlowStore{splitter: "LINES"},
		files:      newMemFiles(),
		logs:       &fakeLogStore{},
		dispatcher: queue.NewMemoryDispatcher(),
		now:        time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	h.jobs = NewJobService(h.store, NewReferenceResolver(h.flow), h.files, h.dispatcher, nil, &JobConfig{
		ChunkSize:             domain.ChunkRecordCountUpperBound,
		VerifyByteSize:        true,
		ProcessingDestination: processorQueue,
		SinkPrefix:            sinkPrefix,
	})
	h.chunks = NewChunkService(h.store, h.dispatcher, nil, sinkPrefix)
	h.retention = NewRetentionService(h.store, h.files, h.logs, nil, &RetentionConfig{
		Interval:           time.Hour,
		SuperTransientDays: 1,
		AccTestDays:        5,
		TransientDays:      90,
		TestDays:           90,
		ExpirationDays:     1810,
	})
	h.jobs.now = h.clock
	h.chunks.now = h.clock
	h.retention.now = h.clock
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setClock(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = t
}

func spec(jobType domain.JobType, dataFile string) domain.JobSpecification {
	return domain.JobSpecification{
		Packaging:   "lin",
		Format:      "basis",
		Charset:     "utf8",
		Destination: "broend",
		SubmitterID: 870970,
		DataFile:    dataFile,
		Type:        jobType,
	}
}

func records(n int) []byte {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "record %d\n", i)
	}
	return []byte(b.String())
}

// createJob stores n line records under urn and creates a job of jobType over them.
func (h *harness) createJob(t *testing.T, jobType domain.JobType, urn string, n int) *domain.Job {
	t.Helper()
	h.files.put(urn, records(n))
	job, err := h.jobs.Create(context.Background(), spec(jobType, urn))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.FatalError {
		t.Fatalf("job failed: %+v", job.Diagnostics)
	}
	return job
}

// result turns the partitioned chunk into a result of chunkType with the given statuses.
func (h *harness) result(t *testing.T, jobID int64, chunkID int, chunkType domain.ChunkType, status domain.ItemStatus) *domain.Chunk {
	t.Helper()
	partitioned, err := h.store.Chunks.LoadChunk(context.Background(), jobID, chunkID, domain.PhasePartitioning)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	out := &domain.Chunk{JobID: jobID, ChunkID: chunkID, Type: chunkType}
	for _, item := range partitioned.Items {
		item.Status = status
		item.Data = append([]byte(string(chunkType)+":"), item.Data...)
		out.Items = append(out.Items, item)
	}
	return out
}

func (h *harness) submit(t *testing.T, chunk *domain.Chunk) *domain.Job {
	t.Helper()
	job, _, err := h.chunks.SubmitResult(context.Background(), chunk)
	if err != nil {
		t.Fatalf("SubmitResult(%d/%d %s): %v", chunk.JobID, chunk.ChunkID, chunk.Type, err)
	}
	return job
}

// complete submits successful PROCESSED and DELIVERED results for every chunk of job.
func (h *harness) complete(t *testing.T, job *domain.Job) *domain.Job {
	t.Helper()
	var last *domain.Job
	for _, chunkType := range []domain.ChunkType{domain.ChunkTypeProcessed, domain.ChunkTypeDelivered} {
		for id := 0; id < job.NumberOfChunks; id++ {
			last = h.submit(t, h.result(t, job.ID, id, chunkType, domain.ItemStatusSuccess))
		}
	}
	return last
}
