// Package orchestrator runs diagnostic scans end to end.
//
// A run fans out to every configured worker concurrently, waits for all of
// them, then processes the results in a fixed worker order: persist each
// result, update agent health, generate findings, score, and finalize. Worker
// failures never fail a run; they surface as unavailable sources on the
// finished report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kensa/internal/health"
	"github.com/ashita-ai/kensa/internal/integrity"
	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
	"github.com/ashita-ai/kensa/internal/scoring"
	"github.com/ashita-ai/kensa/internal/suggest"
	"github.com/ashita-ai/kensa/internal/telemetry"
	"github.com/ashita-ai/kensa/internal/worker"
)

const (
	// DefaultRunBudget bounds the fan-out phase of a run.
	DefaultRunBudget = 55 * time.Second

	// DefaultStaleAfter is the age past which a worker's last successful
	// result is reported as stale.
	DefaultStaleAfter = 7 * 24 * time.Hour

	// persistTimeout bounds the post-fan-out writes of a run. It is separate
	// from the run budget so a fan-out that used the whole budget can still
	// be recorded.
	persistTimeout = 15 * time.Second
)

var (
	// ErrInvalidDomain is returned when the requested domain is not a public hostname.
	ErrInvalidDomain = errors.New("orchestrator: invalid domain")

	// ErrInvalidMode is returned for a scan mode other than light or full.
	ErrInvalidMode = errors.New("orchestrator: invalid mode")
)

var tracer = telemetry.Tracer("kensa/orchestrator")

// Store is the persistence the orchestrator needs. Both the PostgreSQL and the
// SQLite stores satisfy it.
type Store interface {
	health.Repository

	UpsertSite(ctx context.Context, domain string, at time.Time) (model.Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (model.Site, error)

	CreateRun(ctx context.Context, run model.Run) (model.Run, bool, error)
	FindReusableRun(ctx context.Context, key string) (model.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	MarkRunRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	FailRun(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	FinalizeRun(ctx context.Context, run model.Run, suggestions []model.Suggestion, tickets []model.Ticket, insights []model.Insight) error

	InsertWorkerResult(ctx context.Context, r model.WorkerCallResult) error
	ListWorkerResults(ctx context.Context, runID uuid.UUID) ([]model.WorkerCallResult, error)
	LatestSuccessfulResults(ctx context.Context, siteID uuid.UUID) ([]model.WorkerCallResult, error)

	ListSuggestions(ctx context.Context, runID uuid.UUID) ([]model.Suggestion, error)
	ListTickets(ctx context.Context, runID uuid.UUID) ([]model.Ticket, error)
	ListInsights(ctx context.Context, runID uuid.UUID) ([]model.Insight, error)

	InsertRunEvent(ctx context.Context, e model.RunEvent) error
}

// Caller performs one worker call and always returns a terminal result.
type Caller interface {
	Call(ctx context.Context, cfg worker.Config, target worker.Target) model.WorkerCallResult
}

// Options configures an Orchestrator. Zero durations take the defaults.
type Options struct {
	Workers              []worker.Config
	RunBudget            time.Duration
	StaleAfter           time.Duration
	DefaultWorkerTimeout time.Duration
}

// StartRequest asks for a diagnostic run.
type StartRequest struct {
	Domain    string
	Mode      string
	Force     bool
	Async     bool
	RequestID string
}

// StartResult describes the run that satisfies a StartRequest.
type StartResult struct {
	RunID        uuid.UUID
	Status       model.RunStatus
	Deduplicated bool
	Run          model.Run
}

// Orchestrator coordinates runs. It is safe for concurrent use.
type Orchestrator struct {
	store     Store
	caller    Caller
	tracker   *health.Tracker
	generator *suggest.Generator
	registry  *registry
	logger    *slog.Logger
	now       func() time.Time

	workers              []worker.Config
	runBudget            time.Duration
	staleAfter           time.Duration
	defaultWorkerTimeout time.Duration

	background sync.WaitGroup

	runsTotal      metric.Int64Counter
	runsDeduped    metric.Int64Counter
	agentsDegraded metric.Int64Counter
}

// New creates an Orchestrator. Workers are called and processed in the fixed
// worker-key order regardless of the order given; a repeated key keeps its
// first configuration.
func New(store Store, caller Caller, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.RunBudget <= 0 {
		opts.RunBudget = DefaultRunBudget
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.DefaultWorkerTimeout <= 0 {
		opts.DefaultWorkerTimeout = worker.DefaultTimeout
	}

	meter := telemetry.Meter("kensa/orchestrator")
	runsTotal, _ := meter.Int64Counter("kensa.runs.total",
		metric.WithDescription("Runs reaching a terminal status"),
	)
	runsDeduped, _ := meter.Int64Counter("kensa.runs.deduplicated",
		metric.WithDescription("Start requests satisfied by an existing run"),
	)
	agentsDegraded, _ := meter.Int64Counter("kensa.agents.degraded",
		metric.WithDescription("Agent transitions into the degraded state"),
	)

	workers := orderWorkers(opts.Workers, logger)
	kinds := make(map[string]normalize.WorkerKind, len(workers))
	for _, w := range workers {
		kinds[w.Key] = w.ResolvedKind()
	}

	return &Orchestrator{
		store:                store,
		caller:               caller,
		tracker:              health.NewTracker(store, logger),
		generator:            suggest.New(kinds),
		registry:             newRegistry(),
		logger:               logger,
		now:                  time.Now,
		workers:              workers,
		runBudget:            opts.RunBudget,
		staleAfter:           opts.StaleAfter,
		defaultWorkerTimeout: opts.DefaultWorkerTimeout,
		runsTotal:            runsTotal,
		runsDeduped:          runsDeduped,
		agentsDegraded:       agentsDegraded,
	}
}

func orderWorkers(cfgs []worker.Config, logger *slog.Logger) []worker.Config {
	byKey := make(map[string]worker.Config, len(cfgs))
	keys := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		if _, dup := byKey[c.Key]; dup {
			logger.Warn("orchestrator: duplicate worker key ignored", "worker", c.Key)
			continue
		}
		byKey[c.Key] = c
		keys = append(keys, c.Key)
	}
	out := make([]worker.Config, 0, len(keys))
	for _, k := range normalize.OrderKeys(keys) {
		out = append(out, byKey[k])
	}
	return out
}

// RunBudget is the fan-out bound applied to every run.
func (o *Orchestrator) RunBudget() time.Duration { return o.runBudget }

// Workers describes the configured workers in processing order, secrets redacted.
func (o *Orchestrator) Workers() []model.WorkerInfo {
	out := make([]model.WorkerInfo, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, w.Info(o.defaultWorkerTimeout))
	}
	return out
}

// StartRun validates the request, coalesces it with any live run for the
// same domain, mode and UTC day unless forced, and executes a new run when
// none exists. Synchronous requests return once the run is terminal; async
// requests return as soon as the run is running.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRequest) (StartResult, error) {
	mode, err := model.ParseScanMode(req.Mode)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	domain, err := model.NormalizeDomain(req.Domain)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}

	now := o.now().UTC()
	key := model.IdempotencyKey(domain, mode, now)

	var c claim
	if req.Force {
		c, err = o.create(ctx, domain, mode, key, true, req.RequestID, now)
	} else {
		c, err = o.registry.claim(ctx, key, func(ctx context.Context) (claim, error) {
			existing, err := o.store.FindReusableRun(ctx, key)
			if err == nil {
				return claim{run: existing}, nil
			}
			if !isNotFound(err) {
				return claim{}, fmt.Errorf("orchestrator: find reusable run: %w", err)
			}
			return o.create(ctx, domain, mode, key, false, req.RequestID, now)
		})
	}
	if err != nil {
		return StartResult{}, err
	}

	if !c.created {
		o.runsDeduped.Add(ctx, 1)
		o.audit(c.run.ID, "run.deduplicated", map[string]any{"request_id": req.RequestID, "status": string(c.run.Status)})
		o.logger.Info("orchestrator: run deduplicated", "run_id", c.run.ID, "domain", domain, "mode", mode, "status", c.run.Status)
		return StartResult{RunID: c.run.ID, Status: c.run.Status, Deduplicated: true, Run: c.run}, nil
	}

	run, err := o.begin(ctx, c)
	if err != nil {
		return StartResult{}, err
	}

	detached := context.WithoutCancel(ctx)
	if req.Async {
		o.background.Add(1)
		go func() {
			defer o.background.Done()
			o.execute(detached, run, c.site)
		}()
		return StartResult{RunID: run.ID, Status: run.Status, Run: run}, nil
	}

	final := o.execute(detached, run, c.site)
	return StartResult{RunID: final.ID, Status: final.Status, Run: final}, nil
}

// create upserts the site and inserts a queued run. For non-forced runs a
// concurrent winner is returned with created=false.
func (o *Orchestrator) create(ctx context.Context, domain string, mode model.ScanMode, key string, forced bool, requestID string, now time.Time) (claim, error) {
	site, err := o.store.UpsertSite(ctx, domain, now)
	if err != nil {
		return claim{}, fmt.Errorf("orchestrator: upsert site: %w", err)
	}
	run, created, err := o.store.CreateRun(ctx, model.Run{
		ID:             uuid.New(),
		SiteID:         site.ID,
		Domain:         domain,
		Mode:           mode,
		IdempotencyKey: key,
		Forced:         forced,
		RequestID:      requestID,
		CreatedAt:      now,
	})
	if err != nil {
		return claim{}, fmt.Errorf("orchestrator: create run: %w", err)
	}
	return claim{run: run, site: site, created: created}, nil
}

// begin moves a freshly created run to running. Any failure here happens
// before fan-out, so the run is marked failed.
func (o *Orchestrator) begin(ctx context.Context, c claim) (model.Run, error) {
	run := c.run
	o.audit(run.ID, "run.created", map[string]any{
		"domain": run.Domain, "mode": string(run.Mode), "forced": run.Forced, "request_id": run.RequestID,
	})

	startedAt := o.now().UTC()
	if err := o.store.MarkRunRunning(ctx, run.ID, startedAt); err != nil {
		o.fail(run, fmt.Sprintf("start run: %v", err))
		return model.Run{}, fmt.Errorf("orchestrator: mark run running: %w", err)
	}
	run.Status = model.RunStatusRunning
	run.StartedAt = &startedAt

	o.audit(run.ID, "run.started", map[string]any{"workers": len(o.workers)})
	o.logger.Info("orchestrator: run started",
		"run_id", run.ID, "site_id", run.SiteID, "domain", run.Domain, "mode", run.Mode,
		"forced", run.Forced, "workers", len(o.workers), "request_id", run.RequestID)
	return run, nil
}

// execute fans out, processes and finalizes a running run. It returns the
// run as finalized, or marked failed when the report could not be written.
func (o *Orchestrator) execute(ctx context.Context, run model.Run, site model.Site) model.Run {
	ctx, span := tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("kensa.run_id", run.ID.String()),
			attribute.String("kensa.domain", run.Domain),
			attribute.String("kensa.mode", string(run.Mode)),
		),
	)
	defer span.End()

	results := o.fanOut(ctx, worker.Target{
		SiteID:    site.ID,
		RunID:     run.ID,
		Domain:    site.Domain,
		RequestID: run.RequestID,
	})

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	o.persistResults(pctx, results)
	o.recordHealth(pctx, run, results)

	out := o.generator.Generate(run.ID, site, results)
	metrics, ratings := combine(results)
	scores := scoring.Compute(metrics, ratings)

	final := finalize(run, results, out, scores)
	done := o.now().UTC()
	final.CompletedAt = &done

	if err := o.store.FinalizeRun(pctx, final, out.Suggestions, out.Tickets, out.Insights); err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("orchestrator: finalize run failed", "run_id", run.ID, "error", err)
		failed := o.fail(run, fmt.Sprintf("persist report: %v", err))
		return failed
	}

	span.SetAttributes(attribute.String("kensa.run_status", string(final.Status)))
	o.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(final.Status))))
	o.audit(run.ID, "run.finalized", map[string]any{
		"status":                final.Status,
		"success_count":         final.SuccessCount,
		"failed_count":          final.FailedCount,
		"suggestions_generated": final.SuggestionsGenerated,
		"tickets_generated":     final.TicketsGenerated,
		"insights_generated":    final.InsightsGenerated,
		"overall_score":         scores.Overall,
		"report_digest":         final.ReportDigest,
	})
	o.logger.Info("orchestrator: run finalized",
		"run_id", run.ID, "status", final.Status,
		"success_count", final.SuccessCount, "failed_count", final.FailedCount,
		"suggestions", final.SuggestionsGenerated, "overall_score", scores.Overall,
		"limited_visibility", final.LimitedVisibility)
	return final
}

// fanOut calls every worker concurrently under the run budget and waits for
// all of them. Each goroutine owns one slot of the result slice.
func (o *Orchestrator) fanOut(ctx context.Context, target worker.Target) []model.WorkerCallResult {
	ctx, cancel := context.WithTimeout(ctx, o.runBudget)
	defer cancel()

	results := make([]model.WorkerCallResult, len(o.workers))
	var g errgroup.Group
	for i, cfg := range o.workers {
		g.Go(func() error {
			results[i] = o.caller.Call(ctx, cfg, target)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) persistResults(ctx context.Context, results []model.WorkerCallResult) {
	for _, r := range results {
		if err := o.store.InsertWorkerResult(ctx, r); err != nil {
			o.logger.Error("orchestrator: persist worker result failed",
				"run_id", r.RunID, "worker", r.WorkerKey, "error", err)
		}
		settled := map[string]any{"worker": r.WorkerKey, "status": string(r.Status), "duration_ms": r.DurationMS}
		if r.ErrorCode != nil {
			settled["error_code"] = *r.ErrorCode
		}
		o.audit(r.RunID, "worker.settled", settled)
		if len(r.Unmapped) > 0 {
			o.audit(r.RunID, "metrics.unmapped", map[string]any{"worker": r.WorkerKey, "keys": r.Unmapped})
		}
	}
}

func (o *Orchestrator) recordHealth(ctx context.Context, run model.Run, results []model.WorkerCallResult) {
	recorded, err := o.tracker.RecordRun(ctx, run.SiteID, results)
	if err != nil {
		o.logger.Error("orchestrator: record agent health failed", "run_id", run.ID, "error", err)
	}
	for _, r := range recorded {
		switch r.Transition {
		case health.TransitionDegraded:
			o.agentsDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", r.Agent)))
			o.audit(run.ID, "agent.degraded", map[string]any{"agent": r.Agent, "consecutive_failures": r.ConsecutiveFailures})
		case health.TransitionRecovered:
			o.audit(run.ID, "agent.recovered", map[string]any{"agent": r.Agent})
		}
	}
}

// fail marks a run failed, best effort, and returns the failed view of it.
func (o *Orchestrator) fail(run model.Run, reason string) model.Run {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	at := o.now().UTC()
	if err := o.store.FailRun(ctx, run.ID, reason, at); err != nil {
		o.logger.Error("orchestrator: mark run failed", "run_id", run.ID, "reason", reason, "error", err)
	}
	o.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(model.RunStatusFailed))))
	o.audit(run.ID, "run.failed", map[string]any{"reason": reason})
	o.logger.Warn("orchestrator: run failed", "run_id", run.ID, "reason", reason)

	run.Status = model.RunStatusFailed
	run.FailureReason = &reason
	run.CompletedAt = &at
	return run
}

// combine merges the metrics and ratings of every successful result.
func combine(results []model.WorkerCallResult) (map[string]float64, map[string]model.Rating) {
	metrics := map[string]float64{}
	ratings := map[string]model.Rating{}
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		for k, v := range r.Metrics {
			metrics[k] = v
		}
		for k, v := range r.Ratings {
			ratings[k] = v
		}
	}
	return metrics, ratings
}

// finalize builds the terminal run row from the processed results.
func finalize(run model.Run, results []model.WorkerCallResult, out suggest.Output, scores model.Scores) model.Run {
	run.Status = run.Mode.FinalStatus()
	run.WorkerStatuses = make(map[string]model.WorkerStatusSummary, len(results))
	run.UnavailableSources = []string{}
	for _, r := range results {
		run.WorkerStatuses[r.WorkerKey] = r.StatusSummary()
		switch r.Status {
		case model.CallSuccess:
			run.SuccessCount++
		case model.CallFailed, model.CallTimeout:
			run.FailedCount++
		}
		if !r.Succeeded() {
			run.UnavailableSources = append(run.UnavailableSources, r.WorkerKey)
		}
	}
	run.LimitedVisibility = len(run.UnavailableSources) > 0
	run.Scores = &scores
	run.SuggestionsGenerated = len(out.Suggestions)
	run.TicketsGenerated = len(out.Tickets)
	run.InsightsGenerated = len(out.Insights)

	prints := make([]string, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		prints = append(prints, s.Fingerprint)
	}
	run.ReportDigest = integrity.ReportDigest(prints)
	return run
}

// Drain waits for background runs to finish or ctx to expire.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator: drain: %w", ctx.Err())
	}
}
