package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/service"
)

// Sweeper runs a retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// RetentionHandler triggers out-of-cycle retention sweeps.
type RetentionHandler struct {
	sweeper Sweeper
}

// NewRetentionHandler creates a new retention handler.
func NewRetentionHandler(sweeper Sweeper) *RetentionHandler {
	return &RetentionHandler{sweeper: sweeper}
}

// Purge handles POST /api/v1/purge.
func (h *RetentionHandler) Purge(c *gin.Context) {
	res, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
