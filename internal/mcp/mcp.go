// Package mcp implements the Model Context Protocol server for Kensa.
//
// The MCP server exposes the run lifecycle of the HTTP API as MCP tools,
// resources and prompts, so MCP-compatible agents can start diagnostic runs
// on a site, poll them and read site health.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kensa/internal/orchestrator"
)

// Server wraps the MCP server with Kensa's orchestrator.
type Server struct {
	mcpServer *mcpserver.MCPServer
	orch      *orchestrator.Orchestrator
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools, resources and
// prompts.
func New(orch *orchestrator.Orchestrator, logger *slog.Logger, version string) *Server {
	s := &Server{
		orch:   orch,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kensa",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(instructions),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const instructions = `Kensa runs diagnostic scans of a website by fanning out to specialist workers
(technical crawl, performance, rankings, competitors, AI readiness) and turns
their results into scores, prioritized suggestions and tickets.

Start a scan with kensa_start_run. Runs for the same site and mode are reused
within a UTC day unless force is set. Poll kensa_run_status until the status is
preview_ready, completed or failed. Use kensa_site_health to see which workers
are degraded or have stale data for a site.`

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
