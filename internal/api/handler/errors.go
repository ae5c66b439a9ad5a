package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/domain"
	"github.com/timmy/jobstore/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	JobID   int64            `json:"jobId,omitempty"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError answers with the status and body matching err.
func writeError(c *gin.Context, err error) {
	e, ok := domain.AsError(err)
	if !ok {
		e = domain.NewInfrastructureError(domain.CodeStoreUnavailable, err, "internal error")
	}
	status := statusOf(e.Kind)
	if status >= http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: e.Code, Message: e.Message, JobID: e.JobID})
}

func badRequest(c *gin.Context, code domain.ErrorCode, format string, args ...interface{}) {
	writeError(c, domain.NewValidationError(code, format, args...))
}
