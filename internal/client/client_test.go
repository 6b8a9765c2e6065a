package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/client"
	"github.com/ashita-ai/kensa/internal/model"
)

func writeData(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{RequestID: "req-1", Timestamp: time.Now().UTC()},
	}))
}

func writeErr(t *testing.T, w http.ResponseWriter, status int, code, msg string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: code, Message: msg},
		Meta:  model.ResponseMeta{RequestID: "req-1", Timestamp: time.Now().UTC()},
	}))
}

func newClient(t *testing.T, h http.Handler) *client.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := client.NewClient(client.Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := client.NewClient(client.Config{})
	require.Error(t, err)

	_, err = client.NewClient(client.Config{BaseURL: "localhost:8080"})
	require.Error(t, err)

	_, err = client.NewClient(client.Config{BaseURL: "http://localhost:8080/"})
	require.NoError(t, err)
}

func TestStartRun(t *testing.T) {
	runID := uuid.New()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/runs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req model.StartRunRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "example.com", req.Domain)
		assert.Equal(t, "full", req.Mode)
		assert.True(t, req.Force)

		writeData(t, w, http.StatusCreated, model.StartRunResponse{
			RunID:  runID,
			Status: model.RunStatusCompleted,
			Run: model.RunStatusView{
				RunID:        runID,
				Domain:       "example.com",
				Mode:         model.ModeFull,
				Status:       model.RunStatusCompleted,
				SuccessCount: 3,
			},
		})
	}))

	resp, err := c.StartRun(context.Background(), model.StartRunRequest{Domain: "example.com", Mode: "full", Force: true})
	require.NoError(t, err)
	assert.Equal(t, runID, resp.RunID)
	assert.Equal(t, model.RunStatusCompleted, resp.Status)
	assert.False(t, resp.Deduplicated)
	assert.Equal(t, 3, resp.Run.SuccessCount)
}

func TestErrorEnvelope(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/runs":
			w.Header().Set("Retry-After", "7")
			writeErr(t, w, http.StatusTooManyRequests, model.ErrCodeRateLimited, "rate limit exceeded")
		case "/v1/sites/localhost/health":
			writeErr(t, w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid domain")
		default:
			writeErr(t, w, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		}
	}))
	ctx := context.Background()

	_, err := c.StartRun(ctx, model.StartRunRequest{Domain: "example.com"})
	require.Error(t, err)
	assert.True(t, client.IsRateLimited(err))
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 7, apiErr.RetryAfter)
	assert.Equal(t, model.ErrCodeRateLimited, apiErr.Code)

	_, err = c.SiteHealth(ctx, "localhost")
	assert.True(t, client.IsInvalidInput(err))

	_, err = c.GetRun(ctx, uuid.New())
	assert.True(t, client.IsNotFound(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestNonEnvelopeError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	_, err := c.Workers(context.Background())
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestReportAndWorkers(t *testing.T) {
	runID := uuid.New()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/runs/" + runID.String() + "/report":
			writeData(t, w, http.StatusOK, model.RunReport{
				Run:         model.RunStatusView{RunID: runID},
				Suggestions: []model.Suggestion{{Title: "Missing H1 Tag", Severity: model.SeverityHigh}},
			})
		case "/v1/workers":
			writeData(t, w, http.StatusOK, []model.WorkerInfo{
				{Key: "technical", Agent: "technical", Resolvable: true},
				{Key: "serp", Agent: "serp", RequiresKey: true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	report, err := c.Report(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, report.Run.RunID)
	require.Len(t, report.Suggestions, 1)
	assert.Equal(t, model.SeverityHigh, report.Suggestions[0].Severity)

	workers, err := c.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "technical", workers[0].Key)
	assert.False(t, workers[1].Resolvable)
}

func TestHealthUnhealthyKeepsBody(t *testing.T) {
	var unhealthy atomic.Bool
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !unhealthy.Load() {
			writeData(t, w, http.StatusOK, model.HealthResponse{Status: "healthy", Storage: "sqlite", Database: "connected"})
			return
		}
		writeData(t, w, http.StatusServiceUnavailable, model.HealthResponse{Status: "unhealthy", Storage: "sqlite", Database: "disconnected"})
	}))
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	unhealthy.Store(true)
	h, err = c.Health(ctx)
	require.Error(t, err)
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, "sqlite", h.Storage)
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}
