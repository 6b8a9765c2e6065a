package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
	"github.com/ashita-ai/kensa/internal/telemetry"
)

// MaxResponseBytes caps how much of a worker response body is read.
const MaxResponseBytes = 8 << 20

// maxStoredRawBytes caps how much of a non-JSON body is kept as payload.
const maxStoredRawBytes = 4096

var tracer = telemetry.Tracer("kensa/worker")

// Caller issues bounded-time calls to remote workers.
type Caller struct {
	httpClient     *http.Client
	defaultTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
	callDuration   metric.Float64Histogram
}

// NewCaller creates a Caller. If httpClient is nil, a client with an
// OpenTelemetry transport is used so trace context propagates to workers.
// The per-call deadline comes from the context, not from the client.
func NewCaller(httpClient *http.Client, defaultTimeout time.Duration, logger *slog.Logger) *Caller {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	meter := telemetry.Meter("kensa/worker")
	callDur, _ := meter.Float64Histogram("kensa.worker.call.duration",
		metric.WithDescription("Duration of worker calls (ms)"),
		metric.WithUnit("ms"),
	)
	return &Caller{
		httpClient:     httpClient,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		now:            time.Now,
		callDuration:   callDur,
	}
}

// Response is a successful worker response: the envelope's data, or the
// whole body when the worker did not use the envelope.
type Response struct {
	StatusCode int
	Data       json.RawMessage
	Body       []byte
	Enveloped  bool
}

type runRequest struct {
	SiteID uuid.UUID `json:"site_id"`
	RunID  uuid.UUID `json:"run_id"`
	Domain string    `json:"domain"`
}

type envelope struct {
	OK    *bool           `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// Invoke performs one call and returns the decoded response. Every failure is
// a *CallError. A malformed 2xx body returns both the Response and a
// MalformedResponseError so the caller can still extract from it.
func (c *Caller) Invoke(ctx context.Context, cfg Config, target Target) (Response, error) {
	if reason := cfg.unresolvedReason(); reason != "" {
		return Response{}, &CallError{Kind: ConfigurationError, Code: CodeNoConfig, Detail: reason}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody, err := json.Marshal(runRequest{SiteID: target.SiteID, RunID: target.RunID, Domain: target.Domain})
	if err != nil {
		return Response{}, &CallError{Kind: TransportError, Code: CodeRequestBuild, Detail: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL(), bytes.NewReader(reqBody))
	if err != nil {
		return Response{}, &CallError{Kind: TransportError, Code: CodeRequestBuild, Detail: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if target.RequestID != "" {
		req.Header.Set("X-Request-ID", target.RequestID)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		req.Header.Set("X-API-Key", cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, classifyTransport(ctx, err, timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return Response{}, classifyTransport(ctx, err, timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &CallError{
			Kind:   UpstreamError,
			Code:   HTTPCode(resp.StatusCode),
			Detail: truncate(string(body), maxErrorDetailSize),
		}
	}
	if len(body) > MaxResponseBytes {
		return Response{}, &CallError{
			Kind:   UpstreamError,
			Code:   CodeTooLarge,
			Detail: fmt.Sprintf("response exceeds %d bytes", MaxResponseBytes),
		}
	}

	out := Response{StatusCode: resp.StatusCode, Body: body}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.OK == nil {
		detail := "response is not a worker envelope"
		if err != nil {
			detail = "response is not JSON: " + err.Error()
		}
		return out, &CallError{Kind: MalformedResponseError, Code: CodeMalformed, Detail: detail, Err: err}
	}
	if !*env.OK {
		return Response{}, &CallError{Kind: UpstreamError, Code: CodeWorkerNotOK, Detail: envelopeError(env.Error)}
	}
	out.Data = env.Data
	out.Enveloped = true
	return out, nil
}

// Call invokes the worker and always returns a terminal result. It never
// returns early for sibling failures and never blocks past the call's timeout.
func (c *Caller) Call(ctx context.Context, cfg Config, target Target) model.WorkerCallResult {
	kind := cfg.ResolvedKind()
	ctx, span := tracer.Start(ctx, "worker.call",
		trace.WithAttributes(
			attribute.String("kensa.worker", cfg.Key),
			attribute.String("kensa.worker_kind", string(kind)),
			attribute.String("kensa.run_id", target.RunID.String()),
		),
	)
	defer span.End()

	start := c.now()
	res := model.WorkerCallResult{
		ID:        uuid.New(),
		RunID:     target.RunID,
		SiteID:    target.SiteID,
		WorkerKey: cfg.Key,
		Agent:     cfg.AgentName(),
		Metrics:   map[string]float64{},
	}

	resp, err := c.Invoke(ctx, cfg, target)
	var callErr *CallError
	switch {
	case err == nil:
		c.applyExtraction(&res, kind, normalize.Extract(kind, resp.Data))
		res.Payload = storedPayload(resp.Data)
		res.Status = model.CallSuccess

	case errors.As(err, &callErr) && callErr.Kind == MalformedResponseError:
		// Shape did not match the envelope; the generic extractor still
		// gets a chance at the body.
		c.applyExtraction(&res, normalize.KindGeneric, normalize.ExtractUnstructured(resp.Body))
		res.Payload = storedPayload(resp.Body)
		res.Status = model.CallSuccess
		c.logger.Warn("worker: response did not match envelope, using generic extraction",
			"worker", cfg.Key, "run_id", target.RunID, "detail", callErr.Detail)

	case errors.As(err, &callErr):
		res.Status = callErr.Kind.Status()
		res.ErrorCode = &callErr.Code
		if callErr.Detail != "" {
			detail := callErr.Detail
			res.ErrorDetail = &detail
		}
		res.Summary = failureSummary(callErr)

	default:
		code := CodeTransport
		detail := err.Error()
		res.Status = model.CallFailed
		res.ErrorCode = &code
		res.ErrorDetail = &detail
		res.Summary = "request failed"
	}

	res.CreatedAt = c.now()
	res.DurationMS = res.CreatedAt.Sub(start).Milliseconds()

	span.SetAttributes(attribute.String("kensa.worker_status", string(res.Status)))
	if res.Status == model.CallFailed || res.Status == model.CallTimeout {
		span.SetStatus(codes.Error, res.Summary)
	}
	if c.callDuration != nil {
		c.callDuration.Record(ctx, float64(res.DurationMS), metric.WithAttributes(
			attribute.String("worker", cfg.Key),
			attribute.String("status", string(res.Status)),
		))
	}

	logAttrs := []any{"worker", cfg.Key, "run_id", target.RunID, "status", res.Status, "duration_ms", res.DurationMS}
	switch res.Status {
	case model.CallFailed, model.CallTimeout:
		c.logger.Warn("worker: call did not succeed", append(logAttrs, "error_code", *res.ErrorCode)...)
	case model.CallSkipped:
		c.logger.Info("worker: skipped", append(logAttrs, "reason", derefOr(res.ErrorDetail, ""))...)
	default:
		c.logger.Debug("worker: call completed", logAttrs...)
	}
	return res
}

func (c *Caller) applyExtraction(res *model.WorkerCallResult, kind normalize.WorkerKind, ext normalize.Extraction) {
	res.Metrics = ext.Metrics
	if len(ext.Ratings) > 0 {
		res.Ratings = ext.Ratings
	}
	res.Unmapped = ext.Unmapped
	res.Issues = ext.Issues
	res.Summary = normalize.For(kind).Summarize(ext)
}

// classifyTransport distinguishes an expired per-call deadline from other
// connection failures.
func classifyTransport(ctx context.Context, err error, timeout time.Duration) *CallError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CallError{
			Kind:   TimeoutError,
			Code:   CodeTimeout,
			Detail: fmt.Sprintf("no response within %s", timeout),
			Err:    err,
		}
	}
	return &CallError{Kind: TransportError, Code: CodeTransport, Detail: err.Error(), Err: err}
}

func failureSummary(e *CallError) string {
	switch e.Kind {
	case ConfigurationError:
		return "not configured"
	case TimeoutError:
		return "timed out"
	case UpstreamError:
		if e.Code == CodeWorkerNotOK {
			return "worker reported failure"
		}
		return "worker returned " + e.Code
	default:
		return "request failed"
	}
}

// envelopeError renders the envelope's error field, which workers send either
// as a string or as an object with a message.
func envelopeError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "worker returned ok=false"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return truncate(s, maxErrorDetailSize)
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		if obj.Code != "" {
			return truncate(obj.Code+": "+obj.Message, maxErrorDetailSize)
		}
		return truncate(obj.Message, maxErrorDetailSize)
	}
	return truncate(string(raw), maxErrorDetailSize)
}

// storedPayload returns a JSON-valid payload for persistence. Non-JSON bodies
// are kept as a truncated JSON string.
func storedPayload(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, err := json.Marshal(truncate(string(b), maxStoredRawBytes))
	if err != nil {
		return nil
	}
	return quoted
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
