package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/domain"
)

// JobService is what the job endpoints need from the job registry.
type JobService interface {
	Create(ctx context.Context, spec domain.JobSpecification) (*domain.Job, error)
	CreateEmpty(ctx context.Context, spec domain.JobSpecification) (*domain.Job, error)
	Get(ctx context.Context, id int64) (*domain.Job, error)
	List(ctx context.Context, criteria domain.JobListCriteria) ([]domain.Job, error)
	Chunk(ctx context.Context, jobID int64, chunkID int, p domain.Phase) (*domain.Chunk, error)
	Redispatch(ctx context.Context, jobID int64) (int, error)
	Rerun(ctx context.Context, jobID int64, failedOnly bool) (*domain.Job, error)
}

// JobHandler handles job endpoints.
type JobHandler struct {
	jobs JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Create handles POST /api/v1/jobs.
// A job that failed with fatal diagnostics is stored and answered with 422.
func (h *JobHandler) Create(c *gin.Context) {
	h.create(c, h.jobs.Create)
}

// CreateEmpty handles POST /api/v1/jobs/empty.
func (h *JobHandler) CreateEmpty(c *gin.Context) {
	h.create(c, h.jobs.CreateEmpty)
}

func (h *JobHandler) create(c *gin.Context, create func(context.Context, domain.JobSpecification) (*domain.Job, error)) {
	var spec domain.JobSpecification
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, domain.CodeInvalidJSON, "invalid job specification: %v", err)
		return
	}

	job, err := create(c.Request.Context(), spec)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, job)
}

// created answers a newly stored job; one that failed with fatal diagnostics gets 422.
func created(c *gin.Context, job *domain.Job) {
	if job.FatalError {
		c.JSON(http.StatusUnprocessableEntity, job)
		return
	}
	c.Header("Location", "/api/v1/jobs/"+strconv.FormatInt(job.ID, 10))
	c.JSON(http.StatusCreated, job)
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(c *gin.Context) {
	criteria, err := parseCriteria(c)
	if err != nil {
		writeError(c, err)
		return
	}
	jobs, err := h.jobs.List(c.Request.Context(), criteria)
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

// Items handles GET /api/v1/jobs/:id/chunks/:chunkId/items?type=PARTITIONED|PROCESSED|DELIVERED.
func (h *JobHandler) Items(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	chunkID, err := strconv.Atoi(c.Param("chunkId"))
	if err != nil {
		badRequest(c, domain.CodeInvalidInput, "invalid chunk id %q", c.Param("chunkId"))
		return
	}
	chunkType := domain.ChunkType(strings.ToUpper(c.DefaultQuery("type", string(domain.ChunkTypePartitioned))))
	phase, ok := chunkType.Phase()
	if !ok {
		badRequest(c, domain.CodeInvalidChunkType, "unknown chunk type %q", chunkType)
		return
	}

	chunk, err := h.jobs.Chunk(c.Request.Context(), id, chunkID, phase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

// Redispatch handles POST /api/v1/jobs/:id/redispatch.
func (h *JobHandler) Redispatch(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	n, err := h.jobs.Redispatch(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": id, "dispatched": n})
}

// Rerun handles POST /api/v1/jobs/:id/rerun?failedOnly=true.
// The new job is answered like a created one.
func (h *JobHandler) Rerun(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	failedOnly := false
	if v := c.Query("failedOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, domain.CodeInvalidInput, "invalid value for failedOnly: %q", v)
			return
		}
		failedOnly = b
	}

	job, err := h.jobs.Rerun(c.Request.Context(), id, failedOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, job)
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, domain.CodeInvalidInput, "invalid %s %q", name, c.Param(name))
		return 0, false
	}
	return id, true
}

// parseCriteria reads job query filters from the query string.
func parseCriteria(c *gin.Context) (domain.JobListCriteria, error) {
	var criteria domain.JobListCriteria
	invalid := func(name string) error {
		return domain.NewValidationError(domain.CodeInvalidInput, "invalid value for %s: %q", name, c.Query(name))
	}

	ints := map[string]*int64{"id": &criteria.JobID, "submitter": &criteria.SubmitterID}
	for name, dst := range ints {
		if v := c.Query(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return criteria, invalid(name)
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*int{"limit": &criteria.Limit, "offset": &criteria.Offset} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return criteria, invalid(name)
			}
			*dst = n
		}
	}
	times := map[string]**time.Time{
		"created_before":   &criteria.CreatedBefore,
		"created_after":    &criteria.CreatedAfter,
		"completed_before": &criteria.CompletedBefore,
	}
	for name, dst := range times {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return criteria, invalid(name)
			}
			*dst = &t
		}
	}
	for name, dst := range map[string]**bool{"completed": &criteria.Completed, "fatal": &criteria.FatalError} {
		if v := c.Query(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return criteria, invalid(name)
			}
			*dst = &b
		}
	}
	for _, v := range c.QueryArray("type") {
		t := domain.JobType(strings.ToUpper(v))
		if !t.Valid() {
			return criteria, domain.NewValidationError(domain.CodeInvalidInput, "unknown job type %q", v)
		}
		criteria.Types = append(criteria.Types, t)
	}
	criteria.DataFile = c.Query("datafile")
	return criteria, nil
}
