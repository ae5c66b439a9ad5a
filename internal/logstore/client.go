// Package logstore talks to the job log store service.
package logstore

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client deletes job logs held by the log store.
type Client struct {
	client *resty.Client
}

// NewClient creates a log-store client. An empty base URL yields a client whose
// calls do nothing.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

// DeleteJobLogs removes all log entries for a job. Missing logs are not an error.
func (c *Client) DeleteJobLogs(ctx context.Context, jobID int64) error {
	if c.client == nil {
		return nil
	}
	resp, err := c.client.R().
		SetContext(ctx).
		Delete("/logentries/jobs/" + strconv.FormatInt(jobID, 10))
	if err != nil {
		return fmt.Errorf("failed to delete logs for job %d: %w", jobID, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("failed to delete logs for job %d: status %d", jobID, resp.StatusCode())
	}
	return nil
}
