package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tells a caller how to react to a failed operation.
type ErrorKind int

const (
	KindInfrastructure ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "infrastructure"
	}
}

// ErrorCode is the client-visible identifier of a failure.
type ErrorCode string

const (
	CodeInvalidJSON             ErrorCode = "INVALID_JSON"
	CodeInvalidInput            ErrorCode = "INVALID_INPUT"
	CodeInvalidJobSpecification ErrorCode = "INVALID_JOB_SPECIFICATION"
	CodeInvalidChunkType        ErrorCode = "INVALID_CHUNK_TYPE"
	CodeIllegalChunk            ErrorCode = "ILLEGAL_CHUNK"
	CodeJobNotFound             ErrorCode = "JOB_NOT_FOUND"
	CodeChunkConflict           ErrorCode = "CHUNK_CONFLICT"
	CodeIllegalRerun            ErrorCode = "ILLEGAL_RERUN"
	CodeStoreUnavailable        ErrorCode = "STORE_UNAVAILABLE"
	CodeBrokerUnavailable       ErrorCode = "BROKER_UNAVAILABLE"
)

// Error is the single error type crossing the job-store boundary.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	JobID   int64
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a request the caller must correct.
func NewValidationError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing job.
func NewNotFoundError(jobID int64) *Error {
	return &Error{Kind: KindNotFound, Code: CodeJobNotFound, Message: fmt.Sprintf("job %d not found", jobID), JobID: jobID}
}

// NewConflictError reports a resubmission whose content differs from the recorded one.
func NewConflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: CodeChunkConflict, Message: fmt.Sprintf(format, args...)}
}

// NewInfrastructureError wraps a transient failure of the store or the broker.
func NewInfrastructureError(code ErrorCode, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInfrastructure, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error count as infrastructure failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
