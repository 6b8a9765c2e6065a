package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	workersURI        = "kensa://workers"
	reportURIPrefix   = "kensa://runs/"
	reportURISuffix   = "/report"
	reportURITemplate = reportURIPrefix + "{run_id}" + reportURISuffix
)

func (s *Server) registerResources() {
	// kensa://workers: configured workers, secrets redacted.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			workersURI,
			"Workers",
			mcplib.WithResourceDescription("Configured diagnostic workers in processing order, with resolvability"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleWorkers,
	)

	// kensa://runs/{run_id}/report: full report for a run.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			reportURITemplate,
			"Run Report",
			mcplib.WithTemplateDescription("Worker results, suggestions, tickets and insights for a run"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleReport,
	)
}

func (s *Server) handleWorkers(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.orch.Workers(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal workers: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      workersURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReport(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	runID, err := parseReportURI(uri)
	if err != nil {
		return nil, err
	}

	report, err := s.orch.Report(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("mcp: run report: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal report: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseReportURI extracts the run ID from kensa://runs/{run_id}/report.
func parseReportURI(uri string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(uri, reportURIPrefix)
	if ok {
		rest, ok = strings.CutSuffix(rest, reportURISuffix)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid report URI: %s", uri)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid run id in %s: %w", uri, err)
	}
	return id, nil
}
