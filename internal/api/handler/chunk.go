package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/service"
)

// ChunkService is the chunk ingestion gateway.
type ChunkService interface {
	SubmitResult(ctx context.Context, chunk *domain.Chunk) (*domain.Job, service.SubmitOutcome, error)
}

// ChunkHandler handles chunk result submissions.
type ChunkHandler struct {
	chunks ChunkService
}

// NewChunkHandler creates a new chunk handler.
func NewChunkHandler(chunks ChunkService) *ChunkHandler {
	return &ChunkHandler{chunks: chunks}
}

// Submit handles POST /api/v1/chunks and answers with the job snapshot.
// A repeated submission answers 200 with the unchanged snapshot.
func (h *ChunkHandler) Submit(c *gin.Context) {
	var chunk domain.Chunk
	if err := c.ShouldBindJSON(&chunk); err != nil {
		badRequest(c, domain.CodeInvalidJSON, "invalid chunk: %v", err)
		return
	}

	job, outcome, err := h.chunks.SubmitResult(c.Request.Context(), &chunk)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Chunk-Outcome", string(outcome))
	c.JSON(http.StatusOK, job)
}
