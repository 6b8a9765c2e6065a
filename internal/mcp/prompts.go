package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// diagnose-site: walks the agent through a scan and a summary.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("diagnose-site",
			mcplib.WithPromptDescription("Scan a site and summarize what to fix first"),
			mcplib.WithArgument("domain",
				mcplib.ArgumentDescription("The site to diagnose, e.g. example.com"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("mode",
				mcplib.ArgumentDescription("Scan depth: light or full (default light)"),
			),
		),
		s.handleDiagnoseSitePrompt,
	)
}

func (s *Server) handleDiagnoseSitePrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	domain := request.Params.Arguments["domain"]
	if domain == "" {
		return nil, fmt.Errorf("domain argument is required")
	}
	mode := request.Params.Arguments["mode"]
	if mode == "" {
		mode = "light"
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Diagnose %s", domain),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Diagnose %[1]s:

1. CALL kensa_start_run with domain="%[1]s" and mode="%[2]s".

2. If the status is running, CALL kensa_run_status with the run_id until it
   is preview_ready, completed or failed.

3. READ the report resource kensa://runs/{run_id}/report.

4. SUMMARIZE for the site owner:
   - the overall score and the weakest category
   - the critical and high severity suggestions, most important first
   - any unavailable sources, and say the scores are partial if
     limited_visibility is set

5. If sources were unavailable, CALL kensa_site_health with domain="%[1]s"
   and mention degraded agents or stale data.`, domain, mode),
				},
			},
		},
	}, nil
}
