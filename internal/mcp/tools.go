package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/orchestrator"
	"github.com/ashita-ai/kensa/internal/storage"
)

func (s *Server) registerTools() {
	// kensa_start_run: start or reuse a diagnostic run for a site.
	s.mcpServer.AddTool(
		mcplib.NewTool("kensa_start_run",
			mcplib.WithDescription(`Start a diagnostic run for a website.

WHEN TO USE: When you need a fresh picture of a site's technical health,
performance, rankings or AI readiness.

A run for the same site and mode is reused within a UTC day; the response
then has deduplicated=true and the existing run. Set force=true to start a
new run anyway.

WHAT YOU GET BACK: run_id, status, scores, counts of suggestions and tickets,
and which sources were unavailable. Call kensa_run_status with the run_id if
the status is still running.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("domain",
				mcplib.Description("Site to scan, e.g. example.com or https://example.com/"),
				mcplib.Required(),
			),
			mcplib.WithString("mode",
				mcplib.Description("Scan depth"),
				mcplib.Enum("light", "full"),
				mcplib.DefaultString("light"),
			),
			mcplib.WithBoolean("force",
				mcplib.Description("Start a new run even if one exists for today"),
			),
		),
		s.handleStartRun,
	)

	// kensa_run_status: poll a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("kensa_run_status",
			mcplib.WithDescription("Get the status, per-worker outcomes and scores of a diagnostic run."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("Run ID returned by kensa_start_run"),
				mcplib.Required(),
			),
		),
		s.handleRunStatus,
	)

	// kensa_site_health: agent health and source freshness.
	s.mcpServer.AddTool(
		mcplib.NewTool("kensa_site_health",
			mcplib.WithDescription(`Report agent health and data freshness for a site.

Each agent is healthy or degraded (three consecutive failed runs). Each
source lists when it last succeeded and whether that data is stale.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("domain",
				mcplib.Description("Site domain, e.g. example.com"),
				mcplib.Required(),
			),
		),
		s.handleSiteHealth,
	)
}

func (s *Server) handleStartRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domain := request.GetString("domain", "")
	if domain == "" {
		return errorResult("domain is required"), nil
	}

	res, err := s.orch.StartRun(ctx, orchestrator.StartRequest{
		Domain:    domain,
		Mode:      request.GetString("mode", ""),
		Force:     request.GetBool("force", false),
		RequestID: ctxutil.RequestIDFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidDomain) || errors.Is(err, orchestrator.ErrInvalidMode) {
			return errorResult(err.Error()), nil
		}
		s.logger.Error("mcp: start run failed", "domain", domain, "error", err)
		return errorResult(fmt.Sprintf("start run failed: %v", err)), nil
	}

	out := compactRun(res.Run.StatusView())
	out["deduplicated"] = res.Deduplicated
	return jsonResult(out)
}

func (s *Server) handleRunStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a UUID"), nil
	}
	view, err := s.orch.GetStatus(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult("run not found: " + runID.String()), nil
		}
		return errorResult(fmt.Sprintf("get run failed: %v", err)), nil
	}
	return jsonResult(compactRun(view))
}

func (s *Server) handleSiteHealth(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domain := request.GetString("domain", "")
	if domain == "" {
		return errorResult("domain is required"), nil
	}
	view, err := s.orch.SiteHealth(ctx, domain)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrInvalidDomain):
			return errorResult(err.Error()), nil
		case errors.Is(err, storage.ErrNotFound):
			return errorResult("no runs recorded for " + domain), nil
		}
		return errorResult(fmt.Sprintf("site health failed: %v", err)), nil
	}
	return jsonResult(compactHealth(view))
}
