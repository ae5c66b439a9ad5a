package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/service"
)

type fakeJobs struct {
	job        *domain.Job
	err        error
	criteria   domain.JobListCriteria
	phase      domain.Phase
	failedOnly bool
}

func (f *fakeJobs) Create(_ context.Context, spec domain.JobSpecification) (*domain.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.job != nil {
		return f.job, nil
	}
	return &domain.Job{ID: 7, Specification: spec}, nil
}

func (f *fakeJobs) CreateEmpty(ctx context.Context, spec domain.JobSpecification) (*domain.Job, error) {
	return f.Create(ctx, spec)
}

func (f *fakeJobs) Get(_ context.Context, id int64) (*domain.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Job{ID: id}, nil
}

func (f *fakeJobs) List(_ context.Context, criteria domain.JobListCriteria) ([]domain.Job, error) {
	f.criteria = criteria
	return nil, f.err
}

func (f *fakeJobs) Chunk(_ context.Context, jobID int64, chunkID int, p domain.Phase) (*domain.Chunk, error) {
	f.phase = p
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Chunk{JobID: jobID, ChunkID: chunkID, Type: domain.ChunkTypeOf(p)}, nil
}

func (f *fakeJobs) Redispatch(_ context.Context, _ int64) (int, error) {
	return 3, f.err
}

func (f *fakeJobs) Rerun(_ context.Context, jobID int64, failedOnly bool) (*domain.Job, error) {
	f.failedOnly = failedOnly
	if f.err != nil {
		return nil, f.err
	}
	if f.job != nil {
		return f.job, nil
	}
	return &domain.Job{ID: jobID + 1, Specification: domain.JobSpecification{
		Ancestry: &domain.Ancestry{PreviousJobID: jobID},
	}}, nil
}

type fakeChunks struct {
	outcome service.SubmitOutcome
	err     error
}

func (f *fakeChunks) SubmitResult(_ context.Context, chunk *domain.Chunk) (*domain.Job, service.SubmitOutcome, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return &domain.Job{ID: chunk.JobID}, f.outcome, nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type sweepFunc func(context.Context) (*service.SweepResult, error)

func (f sweepFunc) Sweep(ctx context.Context) (*service.SweepResult, error) { return f(ctx) }

func newRouter(jobs *fakeJobs, chunks *fakeChunks) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	jh := NewJobHandler(jobs)
	r.POST("/jobs", jh.Create)
	r.POST("/jobs/empty", jh.CreateEmpty)
	r.GET("/jobs", jh.List)
	r.GET("/jobs/:id", jh.Get)
	r.GET("/jobs/:id/chunks/:chunkId/items", jh.Items)
	r.POST("/jobs/:id/redispatch", jh.Redispatch)
	r.POST("/jobs/:id/rerun", jh.Rerun)
	r.POST("/chunks", NewChunkHandler(chunks).Submit)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateJob(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{})

	w := do(r, http.MethodPost, "/jobs", `{"packaging":"lin","format":"marc2","submitterId":870970}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/jobs/7", w.Header().Get("Location"))

	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, int64(7), job.ID)
	assert.Equal(t, int64(870970), job.Specification.SubmitterID)
}

func TestCreateFailedJobIsUnprocessable(t *testing.T) {
	r := newRouter(&fakeJobs{job: &domain.Job{ID: 9, FatalError: true}}, &fakeChunks{})

	w := do(r, http.MethodPost, "/jobs/empty", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"fatalError":true`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   domain.ErrorCode
		jobID  int64
	}{
		{"validation", domain.NewValidationError(domain.CodeInvalidJobSpecification, "missing"), http.StatusBadRequest, domain.CodeInvalidJobSpecification, 0},
		{"not found", domain.NewNotFoundError(4), http.StatusNotFound, domain.CodeJobNotFound, 4},
		{"conflict", domain.NewConflictError("differs"), http.StatusConflict, domain.CodeChunkConflict, 0},
		{"broker", &domain.Error{Kind: domain.KindInfrastructure, Code: domain.CodeBrokerUnavailable, Message: "down", JobID: 12}, http.StatusServiceUnavailable, domain.CodeBrokerUnavailable, 12},
		{"plain error", errors.New("boom"), http.StatusServiceUnavailable, domain.CodeStoreUnavailable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeJobs{err: tt.err}, &fakeChunks{})
			w := do(r, http.MethodPost, "/jobs", `{}`)
			require.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.jobID, resp.JobID)
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{})
	for _, target := range []string{"/jobs", "/chunks"} {
		w := do(r, http.MethodPost, target, `{"packaging":`)
		require.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, domain.CodeInvalidJSON, decodeError(t, w).Code, target)
	}
}

func TestListParsesCriteria(t *testing.T) {
	jobs := &fakeJobs{}
	r := newRouter(jobs, &fakeChunks{})

	w := do(r, http.MethodGet, "/jobs?type=transient&type=PERSISTENT&submitter=42&completed=true&created_after=2026-01-02T03:04:05Z&limit=5&offset=10&datafile=urn:dataio-fs:1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	c := jobs.criteria
	assert.Equal(t, []domain.JobType{domain.JobTypeTransient, domain.JobTypePersistent}, c.Types)
	assert.Equal(t, int64(42), c.SubmitterID)
	require.NotNil(t, c.Completed)
	assert.True(t, *c.Completed)
	require.NotNil(t, c.CreatedAfter)
	assert.Equal(t, 2026, c.CreatedAfter.Year())
	assert.Nil(t, c.CreatedBefore)
	assert.Equal(t, 5, c.Limit)
	assert.Equal(t, 10, c.Offset)
	assert.Equal(t, "urn:dataio-fs:1", c.DataFile)
}

func TestListRejectsBadCriteria(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{})
	for _, query := range []string{"type=NOPE", "limit=-1", "created_before=yesterday", "fatal=maybe", "submitter=x"} {
		w := do(r, http.MethodGet, "/jobs?"+query, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestGetRejectsBadID(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/jobs/abc", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/jobs/3", "").Code)
}

func TestItemsChunkType(t *testing.T) {
	jobs := &fakeJobs{}
	r := newRouter(jobs, &fakeChunks{})

	w := do(r, http.MethodGet, "/jobs/3/chunks/1/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhasePartitioning, jobs.phase)

	w = do(r, http.MethodGet, "/jobs/3/chunks/1/items?type=delivered", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseDelivering, jobs.phase)

	w = do(r, http.MethodGet, "/jobs/3/chunks/1/items?type=BOGUS", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeInvalidChunkType, decodeError(t, w).Code)
}

func TestRedispatch(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{})
	w := do(r, http.MethodPost, "/jobs/5/redispatch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobId":5,"dispatched":3}`, w.Body.String())
}

func TestRerun(t *testing.T) {
	jobs := &fakeJobs{}
	r := newRouter(jobs, &fakeChunks{})

	w := do(r, http.MethodPost, "/jobs/5/rerun", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/jobs/6", w.Header().Get("Location"))
	assert.False(t, jobs.failedOnly)
	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	require.NotNil(t, job.Specification.Ancestry)
	assert.Equal(t, int64(5), job.Specification.Ancestry.PreviousJobID)

	w = do(r, http.MethodPost, "/jobs/5/rerun?failedOnly=true", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, jobs.failedOnly)
}

func TestRerunErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		job    *domain.Job
		status int
		code   domain.ErrorCode
	}{
		{name: "bad flag", target: "/jobs/5/rerun?failedOnly=maybe", status: http.StatusBadRequest, code: domain.CodeInvalidInput},
		{name: "bad id", target: "/jobs/x/rerun", status: http.StatusBadRequest, code: domain.CodeInvalidInput},
		{name: "unknown job", target: "/jobs/5/rerun", err: domain.NewNotFoundError(5),
			status: http.StatusNotFound, code: domain.CodeJobNotFound},
		{name: "nothing to rerun", target: "/jobs/5/rerun?failedOnly=1",
			err:    &domain.Error{Kind: domain.KindConflict, Code: domain.CodeIllegalRerun, Message: "job 5 has no failed items"},
			status: http.StatusConflict, code: domain.CodeIllegalRerun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeJobs{err: tt.err}, &fakeChunks{})
			w := do(r, http.MethodPost, tt.target, "")
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}

	r := newRouter(&fakeJobs{job: &domain.Job{ID: 9, FatalError: true}}, &fakeChunks{})
	w := do(r, http.MethodPost, "/jobs/5/rerun", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSubmitChunk(t *testing.T) {
	r := newRouter(&fakeJobs{}, &fakeChunks{outcome: service.OutcomeDuplicate})

	w := do(r, http.MethodPost, "/chunks", `{"jobId":11,"chunkId":0,"type":"PROCESSED","items":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(service.OutcomeDuplicate), w.Header().Get("X-Chunk-Outcome"))
	assert.Contains(t, w.Body.String(), `"jobId":11`)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	down := false
	r.GET("/health", NewHealthHandler(map[string]Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
		"broker": pingFunc(func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}),
	}).Health)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	down = true
	w = do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestPurge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/purge", NewRetentionHandler(sweepFunc(func(context.Context) (*service.SweepResult, error) {
		return &service.SweepResult{Purged: 2, Compacted: 1}, nil
	})).Purge)

	w := do(r, http.MethodPost, "/purge", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"purged":2`)
}
