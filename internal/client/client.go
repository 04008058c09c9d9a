// Package client provides HTTP access to a running daemon's control API.
// The CLI and the cluster monitor are its consumers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harvest/internal/api"
)

// Client talks to one daemon instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a client for the daemon at baseURL. An empty token disables
// the Authorization header.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.call(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Enqueue queues one job.
func (c *Client) Enqueue(ctx context.Context, req api.EnqueueRequest) (*api.EnqueueResponse, error) {
	var resp api.EnqueueResponse
	if err := c.call(ctx, http.MethodPost, "/api/queue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnqueueAll queues index jobs for every candidate file.
func (c *Client) EnqueueAll(ctx context.Context, model string) (*api.EnqueueAllResponse, error) {
	var resp api.EnqueueAllResponse
	if err := c.call(ctx, http.MethodPost, "/api/queue/all", api.EnqueueAllRequest{Model: model}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListQueue fetches jobs filtered by optional kind and statuses.
func (c *Client) ListQueue(ctx context.Context, kind string, statuses []string) (*api.QueueListResponse, error) {
	path := "/api/queue"
	params := make([]string, 0, 1+len(statuses))
	if kind != "" {
		params = append(params, "kind="+kind)
	}
	for _, status := range statuses {
		params = append(params, "status="+status)
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}
	var resp api.QueueListResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveJob deletes a pending job.
func (c *Client) RemoveJob(ctx context.Context, id int64) error {
	var resp api.RemoveResponse
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/queue/%d", id), nil, &resp)
}

// RetryJob resets a failed job to pending.
func (c *Client) RetryJob(ctx context.Context, id int64) error {
	var resp api.RetryResponse
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/api/queue/%d/retry", id), nil, &resp)
}

// Process runs an index batch immediately.
func (c *Client) Process(ctx context.Context, count int) (*api.ProcessResponse, error) {
	var resp api.ProcessResponse
	if err := c.call(ctx, http.MethodPost, "/api/process", api.ProcessRequest{Count: count}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Candidates lists unindexed, unqueued files.
func (c *Client) Candidates(ctx context.Context) (*api.CandidatesResponse, error) {
	var resp api.CandidatesResponse
	if err := c.call(ctx, http.MethodGet, "/api/candidates", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImportAll reconciles ready packages into the catalog.
func (c *Client) ImportAll(ctx context.Context) (*api.ImportResponse, error) {
	var resp api.ImportResponse
	if err := c.call(ctx, http.MethodPost, "/api/harvest/import-all", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ingest catalogs a local file or directory on the daemon's machine.
func (c *Client) Ingest(ctx context.Context, path string, autoIndex bool) (*api.ImportResponse, error) {
	var resp api.ImportResponse
	req := api.IngestRequest{Path: path, AutoIndex: autoIndex}
	if err := c.call(ctx, http.MethodPost, "/api/library/ingest", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
