// Package health tracks per-site agent health across runs.
//
// Each (site, agent) pair keeps a consecutive-failure counter. The third
// consecutive failed run marks the agent degraded; any success resets it.
// Skipped worker calls signal missing configuration and never touch the
// counter. State is advisory: concurrent runs for one site may interleave
// their updates, and each update is a single atomic statement in the store.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
)

// Repository persists agent health. RecordAgentResult must apply the state
// transition atomically and return the row as written.
type Repository interface {
	RecordAgentResult(ctx context.Context, siteID uuid.UUID, agent string, success bool, errMsg *string, at time.Time) (model.AgentHealthState, error)
	ListAgentHealth(ctx context.Context, siteID uuid.UUID) ([]model.AgentHealthState, error)
}

// Result is the outcome of recording one agent result.
type Result struct {
	Agent               string
	IsDegraded          bool
	ConsecutiveFailures int
	DegradedSince       *time.Time
	// Transition is "degraded" or "recovered" when this update changed the
	// agent's health, empty otherwise.
	Transition string
}

// Transitions reported on Result.
const (
	TransitionDegraded  = "degraded"
	TransitionRecovered = "recovered"
)

// Tracker applies per-run outcomes to agent health.
type Tracker struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker backed by repo.
func NewTracker(repo Repository, logger *slog.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger, now: time.Now}
}

// RecordResult records one success or failure for (siteID, agent).
func (t *Tracker) RecordResult(ctx context.Context, siteID uuid.UUID, agent string, success bool, errMsg *string) (Result, error) {
	prev, err := t.current(ctx, siteID, agent)
	if err != nil {
		return Result{}, err
	}
	state, err := t.repo.RecordAgentResult(ctx, siteID, agent, success, errMsg, t.now().UTC())
	if err != nil {
		return Result{}, fmt.Errorf("health: record %s: %w", agent, err)
	}

	res := Result{
		Agent:               agent,
		IsDegraded:          state.IsDegraded(),
		ConsecutiveFailures: state.ConsecutiveFailures,
		DegradedSince:       state.DegradedAt,
	}
	switch {
	case res.IsDegraded && !prev.IsDegraded():
		res.Transition = TransitionDegraded
		t.logger.Warn("health: agent degraded",
			"site_id", siteID, "agent", agent,
			"consecutive_failures", state.ConsecutiveFailures,
			"last_error", derefOr(state.LastError, ""))
	case !res.IsDegraded && prev.IsDegraded():
		res.Transition = TransitionRecovered
		t.logger.Info("health: agent recovered", "site_id", siteID, "agent", agent)
	}
	return res, nil
}

// current reads the state before an update so transitions can be reported.
// A missing row reads as healthy.
func (t *Tracker) current(ctx context.Context, siteID uuid.UUID, agent string) (model.AgentHealthState, error) {
	states, err := t.repo.ListAgentHealth(ctx, siteID)
	if err != nil {
		return model.AgentHealthState{}, fmt.Errorf("health: load state: %w", err)
	}
	for _, s := range states {
		if s.Agent == agent {
			return s, nil
		}
	}
	return model.AgentHealthState{SiteID: siteID, Agent: agent, Health: model.HealthHealthy}, nil
}

// AgentOutcome is the AND of every non-skipped result an agent produced in
// one run.
type AgentOutcome struct {
	Agent   string
	Success bool
	Errors  []string
}

// Aggregate folds worker results into one outcome per agent, in the order
// agents first appear. Results must already be in processing order. Agents
// whose workers were all skipped are omitted.
func Aggregate(results []model.WorkerCallResult) []AgentOutcome {
	var order []string
	byAgent := map[string]*AgentOutcome{}
	for _, r := range results {
		if !r.Status.Counted() {
			continue
		}
		o, ok := byAgent[r.Agent]
		if !ok {
			o = &AgentOutcome{Agent: r.Agent, Success: true}
			byAgent[r.Agent] = o
			order = append(order, r.Agent)
		}
		if !r.Succeeded() {
			o.Success = false
			msg := r.WorkerKey + ": " + string(r.Status)
			if r.ErrorCode != nil {
				msg = r.WorkerKey + ": " + *r.ErrorCode
			}
			o.Errors = append(o.Errors, msg)
		}
	}
	out := make([]AgentOutcome, 0, len(order))
	for _, a := range order {
		out = append(out, *byAgent[a])
	}
	return out
}

// RecordRun records one outcome per agent for a finished run. It keeps going
// past individual failures and returns the results it could record along
// with the first error.
func (t *Tracker) RecordRun(ctx context.Context, siteID uuid.UUID, results []model.WorkerCallResult) ([]Result, error) {
	var (
		out      []Result
		firstErr error
	)
	for _, o := range Aggregate(results) {
		var errMsg *string
		if !o.Success {
			msg := strings.Join(o.Errors, "; ")
			errMsg = &msg
		}
		res, err := t.RecordResult(ctx, siteID, o.Agent, o.Success, errMsg)
		if err != nil {
			t.logger.Error("health: record agent result failed", "site_id", siteID, "agent", o.Agent, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, res)
	}
	return out, firstErr
}

// DegradedAgents returns the agents that are currently degraded, sorted.
func DegradedAgents(states []model.AgentHealthState) []string {
	var out []string
	for _, s := range states {
		if s.IsDegraded() {
			out = append(out, s.Agent)
		}
	}
	sort.Strings(out)
	return out
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
