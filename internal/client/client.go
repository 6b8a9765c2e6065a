// Package client is a typed HTTP client for the Kensa API, used by kensactl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Kensa server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a client with
	// Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Synchronous runs block
	// until the run budget expires, so the default is generous.
	Timeout time.Duration
}

// Client talks to one Kensa server. Safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kensa: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("kensa: invalid BaseURL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// StartRun starts a run or reuses today's run for the same site and mode.
func (c *Client) StartRun(ctx context.Context, req model.StartRunRequest) (model.StartRunResponse, error) {
	var resp model.StartRunResponse
	err := c.post(ctx, "/v1/runs", req, &resp)
	return resp, err
}

// GetRun returns the pollable status of a run.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (model.RunStatusView, error) {
	var resp model.RunStatusView
	err := c.get(ctx, "/v1/runs/"+runID.String(), &resp)
	return resp, err
}

// Report returns the full report of a run.
func (c *Client) Report(ctx context.Context, runID uuid.UUID) (model.RunReport, error) {
	var resp model.RunReport
	err := c.get(ctx, "/v1/runs/"+runID.String()+"/report", &resp)
	return resp, err
}

// SiteHealth returns agent health and source freshness for a domain.
func (c *Client) SiteHealth(ctx context.Context, domain string) (model.SiteHealthView, error) {
	var resp model.SiteHealthView
	err := c.get(ctx, "/v1/sites/"+url.PathEscape(domain)+"/health", &resp)
	return resp, err
}

// Workers lists the configured workers.
func (c *Client) Workers(ctx context.Context) ([]model.WorkerInfo, error) {
	var resp []model.WorkerInfo
	err := c.get(ctx, "/v1/workers", &resp)
	return resp, err
}

// Health reports server liveness. An unhealthy server answers 503 with a
// body; that body is returned alongside the error.
func (c *Client) Health(ctx context.Context) (model.HealthResponse, error) {
	var resp model.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return resp, fmt.Errorf("kensa: create request: %w", err)
	}
	httpResp, err := c.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("kensa: GET /health: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, fmt.Errorf("kensa: read response body: %w", err)
	}
	if httpResp.StatusCode == http.StatusServiceUnavailable {
		if decodeData(body, &resp) == nil && resp.Status != "" {
			return resp, &Error{StatusCode: httpResp.StatusCode, Code: "UNHEALTHY", Message: "database " + resp.Database}
		}
	}
	if httpResp.StatusCode >= 400 {
		return resp, parseErrorResponse(httpResp, body)
	}
	return resp, decodeData(body, &resp)
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kensa: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("kensa: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("kensa: create request: %w", err)
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kensa: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kensa: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp, body)
	}
	if dest == nil {
		return nil
	}
	return decodeData(body, dest)
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// decodeData unwraps the { "data": ... } envelope into dest.
func decodeData(body []byte, dest any) error {
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("kensa: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("kensa: response has no data")
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("kensa: decode response data: %w", err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response, body []byte) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	if ra, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = ra
	}

	var envelope model.APIError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
