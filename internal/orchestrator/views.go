package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

// GetStatus returns the pollable status surface of a run.
func (o *Orchestrator) GetStatus(ctx context.Context, runID uuid.UUID) (model.RunStatusView, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunStatusView{}, fmt.Errorf("orchestrator: get run: %w", err)
	}
	return run.StatusView(), nil
}

// Report returns a run together with its worker results and findings.
// Results come back in processing order.
func (o *Orchestrator) Report(ctx context.Context, runID uuid.UUID) (model.RunReport, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunReport{}, fmt.Errorf("orchestrator: get run: %w", err)
	}
	results, err := o.store.ListWorkerResults(ctx, runID)
	if err != nil {
		return model.RunReport{}, fmt.Errorf("orchestrator: list results: %w", err)
	}
	suggestions, err := o.store.ListSuggestions(ctx, runID)
	if err != nil {
		return model.RunReport{}, fmt.Errorf("orchestrator: list suggestions: %w", err)
	}
	tickets, err := o.store.ListTickets(ctx, runID)
	if err != nil {
		return model.RunReport{}, fmt.Errorf("orchestrator: list tickets: %w", err)
	}
	insights, err := o.store.ListInsights(ctx, runID)
	if err != nil {
		return model.RunReport{}, fmt.Errorf("orchestrator: list insights: %w", err)
	}

	return model.RunReport{
		Run:         run.StatusView(),
		Results:     inProcessingOrder(results),
		Suggestions: nonNil(suggestions),
		Tickets:     nonNil(tickets),
		Insights:    nonNil(insights),
	}, nil
}

// SiteHealth reports agent health for a site and how fresh each worker's
// last successful result is. Every configured worker appears in Sources,
// stale when it has never succeeded or its last success is older than the
// stale threshold.
func (o *Orchestrator) SiteHealth(ctx context.Context, domain string) (model.SiteHealthView, error) {
	normalized, err := model.NormalizeDomain(domain)
	if err != nil {
		return model.SiteHealthView{}, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	site, err := o.store.GetSiteByDomain(ctx, normalized)
	if err != nil {
		return model.SiteHealthView{}, fmt.Errorf("orchestrator: get site: %w", err)
	}
	agents, err := o.store.ListAgentHealth(ctx, site.ID)
	if err != nil {
		return model.SiteHealthView{}, fmt.Errorf("orchestrator: list agent health: %w", err)
	}
	latest, err := o.store.LatestSuccessfulResults(ctx, site.ID)
	if err != nil {
		return model.SiteHealthView{}, fmt.Errorf("orchestrator: latest results: %w", err)
	}

	now := o.now().UTC()
	byKey := make(map[string]model.WorkerCallResult, len(latest))
	keys := make([]string, 0, len(o.workers)+len(latest))
	for _, w := range o.workers {
		keys = append(keys, w.Key)
	}
	for _, r := range latest {
		byKey[r.WorkerKey] = r
		if !o.configured(r.WorkerKey) {
			keys = append(keys, r.WorkerKey)
		}
	}

	sources := make([]model.SourceFreshness, 0, len(keys))
	for _, k := range normalize.OrderKeys(keys) {
		f := model.SourceFreshness{WorkerKey: k, Stale: true}
		if r, ok := byKey[k]; ok {
			at, runID := r.CreatedAt, r.RunID
			f.LastSuccessAt = &at
			f.LastRunID = &runID
			f.Stale = now.Sub(at) > o.staleAfter
		}
		sources = append(sources, f)
	}

	return model.SiteHealthView{
		Site:      site,
		Agents:    nonNil(agents),
		Sources:   sources,
		CheckedAt: now,
	}, nil
}

func (o *Orchestrator) configured(key string) bool {
	for _, w := range o.workers {
		if w.Key == key {
			return true
		}
	}
	return false
}

func inProcessingOrder(results []model.WorkerCallResult) []model.WorkerCallResult {
	byKey := make(map[string]model.WorkerCallResult, len(results))
	keys := make([]string, 0, len(results))
	for _, r := range results {
		byKey[r.WorkerKey] = r
		keys = append(keys, r.WorkerKey)
	}
	out := make([]model.WorkerCallResult, 0, len(results))
	for _, k := range normalize.OrderKeys(keys) {
		out = append(out, byKey[k])
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
