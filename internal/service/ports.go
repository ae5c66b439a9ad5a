package service

import (
	"context"
	"io"
	"time"

	"github.com/timmy/jobstore/internal/flowstore"
)

// FlowStore looks up the configuration entities a job is routed through.
type FlowStore interface {
	GetSubmitter(ctx context.Context, number int64) (*flowstore.Submitter, error)
	GetFlowBinder(ctx context.Context, packaging, format, charset string, submitter int64, destination string) (*flowstore.FlowBinder, error)
	GetFlow(ctx context.Context, id int64) (*flowstore.Flow, error)
	GetSink(ctx context.Context, id int64) (*flowstore.Sink, error)
}

// DataFileStore gives access to uploaded source data.
type DataFileStore interface {
	// Open returns the content of a data file and its size, or -1 when unknown.
	Open(ctx context.Context, urn string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, urn string) error
}

// LogStore removes job log entries.
type LogStore interface {
	DeleteJobLogs(ctx context.Context, jobID int64) error
}

func utcNow() time.Time {
	return time.Now().UTC()
}
