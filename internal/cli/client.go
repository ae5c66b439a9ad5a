package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is the error body returned by the job store.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   int64  `json:"jobId,omitempty"`
}

func (e *APIError) Error() string {
	if e.JobID != 0 {
		return fmt.Sprintf("%d %s: %s (job %d)", e.Status, e.Code, e.Message, e.JobID)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the job store HTTP API.
type Client struct {
	client *resty.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{client: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")}
}

// CreateJob posts a job specification. Empty jobs go to the dedicated endpoint.
// A job stored with fatal diagnostics is returned without error.
func (c *Client) CreateJob(ctx context.Context, spec json.RawMessage, empty bool) (json.RawMessage, error) {
	path := "/api/v1/jobs"
	if empty {
		path += "/empty"
	}
	return c.do(c.client.R().SetContext(ctx).SetBody(spec), "POST", path, 422)
}

// GetJob fetches one job snapshot.
func (c *Client) GetJob(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.do(c.client.R().SetContext(ctx), "GET", "/api/v1/jobs/"+strconv.FormatInt(id, 10))
}

// ListJobs queries jobs with the given filters.
func (c *Client) ListJobs(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.do(c.client.R().SetContext(ctx).SetQueryParamsFromValues(query), "GET", "/api/v1/jobs")
}

// Items fetches the items of one chunk as seen by the given chunk type.
func (c *Client) Items(ctx context.Context, jobID int64, chunkID int, chunkType string) (json.RawMessage, error) {
	path := fmt.Sprintf("/api/v1/jobs/%d/chunks/%d/items", jobID, chunkID)
	return c.do(c.client.R().SetContext(ctx).SetQueryParam("type", chunkType), "GET", path)
}

// SubmitChunk posts a processed or delivered chunk.
func (c *Client) SubmitChunk(ctx context.Context, chunk json.RawMessage) (json.RawMessage, error) {
	return c.do(c.client.R().SetContext(ctx).SetBody(chunk), "POST", "/api/v1/chunks")
}

// Redispatch republishes the unfinished chunks of a job.
func (c *Client) Redispatch(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.do(c.client.R().SetContext(ctx), "POST", fmt.Sprintf("/api/v1/jobs/%d/redispatch", id))
}

// Rerun creates a new job from an earlier one. A rerun that failed is returned like a failed create.
func (c *Client) Rerun(ctx context.Context, id int64, failedOnly bool) (json.RawMessage, error) {
	req := c.client.R().SetContext(ctx)
	if failedOnly {
		req.SetQueryParam("failedOnly", "true")
	}
	return c.do(req, "POST", fmt.Sprintf("/api/v1/jobs/%d/rerun", id), 422)
}

// Purge runs a retention sweep.
func (c *Client) Purge(ctx context.Context) (json.RawMessage, error) {
	return c.do(c.client.R().SetContext(ctx), "POST", "/api/v1/purge")
}

// do executes req and returns the body for 2xx responses and any extra accepted status.
func (c *Client) do(req *resty.Request, method, path string, accept ...int) (json.RawMessage, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	ok := resp.IsSuccess()
	for _, status := range accept {
		ok = ok || resp.StatusCode() == status
	}
	if ok {
		return json.RawMessage(resp.Body()), nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "HTTP_ERROR"
		apiErr.Message = resp.Status()
	}
	return nil, apiErr
}
