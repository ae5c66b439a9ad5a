// Package flowstore looks up flow binders, flows, sinks and submitters in the flow-store service.
package flowstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound is returned when the flow store has no matching entity.
var ErrNotFound = errors.New("flow-store entity not found")

// Config holds flow-store client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client is a REST client for the flow-store service.
type Client struct {
	client *resty.Client
}

// NewClient creates a new flow-store client.
func NewClient(cfg *Config) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{client: client}
}

// GetFlowBinder resolves the flow binder for a routing identity.
func (c *Client) GetFlowBinder(ctx context.Context, packaging, format, charset string, submitter int64, destination string) (*FlowBinder, error) {
	var binder FlowBinder
	err := c.get(ctx, "/binders/resolve", map[string]string{
		"packaging":   packaging,
		"format":      format,
		"charset":     charset,
		"submitter":   strconv.FormatInt(submitter, 10),
		"destination": destination,
	}, &binder)
	if err != nil {
		return nil, err
	}
	return &binder, nil
}

// GetFlow fetches a flow by id.
func (c *Client) GetFlow(ctx context.Context, id int64) (*Flow, error) {
	var flow Flow
	if err := c.get(ctx, "/flows/"+strconv.FormatInt(id, 10), nil, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// GetSink fetches a sink by id.
func (c *Client) GetSink(ctx context.Context, id int64) (*Sink, error) {
	var sink Sink
	if err := c.get(ctx, "/sinks/"+strconv.FormatInt(id, 10), nil, &sink); err != nil {
		return nil, err
	}
	return &sink, nil
}

// GetSubmitter fetches a submitter by its number.
func (c *Client) GetSubmitter(ctx context.Context, number int64) (*Submitter, error) {
	var submitter Submitter
	if err := c.get(ctx, "/submitters/number/"+strconv.FormatInt(number, 10), nil, &submitter); err != nil {
		return nil, err
	}
	return &submitter, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("flow-store request %s failed: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.IsError():
		return fmt.Errorf("flow-store request %s failed: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
