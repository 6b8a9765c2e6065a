package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/orchestrator"
	"github.com/ashita-ai/kensa/internal/ratelimit"
	"github.com/ashita-ai/kensa/internal/server"
	"github.com/ashita-ai/kensa/internal/storage/sqlite"
	"github.com/ashita-ai/kensa/internal/testutil"
	"github.com/ashita-ai/kensa/internal/worker"
)

type envelope[T any] struct {
	Data T                  `json:"data"`
	Meta model.ResponseMeta `json:"meta"`
}

type testEnv struct {
	handler http.Handler
	store   *sqlite.DB
}

type options struct {
	limiter ratelimit.Limiter
	pinger  server.Pinger
}

func newTestEnv(t *testing.T, opts options) *testEnv {
	t.Helper()
	workers := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/technical":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": map[string]any{"missingTitle": 1, "missingH1": 0}})
		case "/performance":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": map[string]any{"lcp": 1.9}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(workers.Close)

	store := testutil.NewSQLite(t)

	cfgs := []worker.Config{
		{Key: "technical", BaseURL: workers.URL, RunEndpoint: "/technical"},
		{Key: "performance", BaseURL: workers.URL, RunEndpoint: "/performance"},
		{Key: "serp", RequiresKey: true, BaseURL: workers.URL, RunEndpoint: "/serp"},
	}
	orch := orchestrator.New(store, worker.NewCaller(nil, 2*time.Second, testutil.TestLogger()),
		orchestrator.Options{Workers: cfgs, RunBudget: 5 * time.Second}, testutil.TestLogger())
	t.Cleanup(func() { _ = orch.Drain(context.Background()) })

	var pinger server.Pinger = store
	if opts.pinger != nil {
		pinger = opts.pinger
	}
	srv := server.New(server.ServerConfig{
		Orchestrator:        orch,
		Store:               pinger,
		Logger:              testutil.TestLogger(),
		Limiter:             opts.limiter,
		Version:             "test",
		MaxRequestBodyBytes: 4096,
		OpenAPISpec:         []byte("openapi: 3.1.0\n"),
	})
	return &testEnv{handler: srv.Handler(), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestStartRun_CreatedThenDeduplicated(t *testing.T) {
	env := newTestEnv(t, options{})

	rec := env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "https://Example.com/", Mode: "light"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[model.StartRunResponse](t, rec)
	assert.Equal(t, model.RunStatusPreviewReady, first.Status)
	assert.False(t, first.Deduplicated)
	assert.Equal(t, "example.com", first.Run.Domain)
	assert.Equal(t, 2, first.Run.SuccessCount)
	assert.Contains(t, first.Run.UnavailableSources, "serp")
	assert.NotEmpty(t, first.Run.ReportDigest)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "example.com", Mode: "light"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[model.StartRunResponse](t, rec)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.RunID, second.RunID)
}

func TestStartRun_Async(t *testing.T) {
	env := newTestEnv(t, options{})
	rec := env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "async.example", Async: true})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[model.StartRunResponse](t, rec)
	assert.Equal(t, model.RunStatusRunning, res.Status)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/v1/runs/"+res.RunID.String(), nil)
		return rec.Code == http.StatusOK && decode[model.RunStatusView](t, rec).Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartRun_InvalidInput(t *testing.T) {
	env := newTestEnv(t, options{})

	for name, body := range map[string]any{
		"bad domain":    model.StartRunRequest{Domain: "not a domain"},
		"bad mode":      model.StartRunRequest{Domain: "example.com", Mode: "everything"},
		"unknown field": map[string]any{"domain": "example.com", "priority": "high"},
	} {
		rec := env.do(t, http.MethodPost, "/v1/runs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, model.ErrCodeInvalidInput, decodeError(t, rec).Code, name)
	}
}

func TestStartRun_RateLimitedPerIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	env := newTestEnv(t, options{limiter: limiter})

	rec := env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "example.com"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, model.ErrCodeRateLimited, decodeError(t, rec).Code)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/workers", nil).Code)
}

func TestGetRunAndReport(t *testing.T) {
	env := newTestEnv(t, options{})
	created := decode[model.StartRunResponse](t, env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "example.com"}))

	rec := env.do(t, http.MethodGet, "/v1/runs/"+created.RunID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[model.RunStatusView](t, rec)
	assert.Equal(t, created.RunID, view.RunID)
	assert.Contains(t, view.WorkerStatuses, "technical")

	rec = env.do(t, http.MethodGet, "/v1/runs/"+created.RunID.String()+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[model.RunReport](t, rec)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "technical", report.Results[0].WorkerKey)
	require.NotEmpty(t, report.Suggestions)
	assert.Equal(t, "Missing Title Tags", report.Suggestions[0].Title)
}

func TestGetRun_NotFoundAndBadID(t *testing.T) {
	env := newTestEnv(t, options{})

	rec := env.do(t, http.MethodGet, "/v1/runs/4f3c2b1a-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/v1/runs/not-a-uuid/report", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSiteHealth(t *testing.T) {
	env := newTestEnv(t, options{})

	rec := env.do(t, http.MethodGet, "/v1/sites/example.com/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no runs yet")

	env.do(t, http.MethodPost, "/v1/runs", model.StartRunRequest{Domain: "example.com"})
	rec = env.do(t, http.MethodGet, "/v1/sites/example.com/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[model.SiteHealthView](t, rec)
	assert.Equal(t, "example.com", view.Site.Domain)
	require.Len(t, view.Sources, 3)
	for _, s := range view.Sources {
		assert.Equal(t, s.WorkerKey == "serp", s.Stale, s.WorkerKey)
	}
}

func TestListWorkers_RedactsSecrets(t *testing.T) {
	env := newTestEnv(t, options{})
	rec := env.do(t, http.MethodGet, "/v1/workers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "api_key\"")

	workers := decode[[]model.WorkerInfo](t, rec)
	require.Len(t, workers, 3)
	byKey := map[string]model.WorkerInfo{}
	for _, w := range workers {
		byKey[w.Key] = w
	}
	assert.True(t, byKey["technical"].Resolvable)
	assert.False(t, byKey["serp"].Resolvable)
	assert.True(t, byKey["serp"].RequiresKey)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }
func (downStore) Backend() string            { return "sqlite" }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, options{})
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[model.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "sqlite", health.Storage)
	assert.Equal(t, 3, health.Workers)

	env = newTestEnv(t, options{pinger: downStore{}})
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode[model.HealthResponse](t, rec).Status)
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t, options{})
	rec := env.do(t, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "openapi:")
}
