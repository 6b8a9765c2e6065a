package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ashita-ai/kensa/internal/model"
)

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

func (c *cli) renderRun(v model.RunStatusView) {
	tw := c.newTable("Run " + v.RunID.String())
	tw.AppendRow(table.Row{"Domain", v.Domain})
	tw.AppendRow(table.Row{"Mode", v.Mode})
	tw.AppendRow(table.Row{"Status", v.Status})
	tw.AppendRow(table.Row{"Workers", fmt.Sprintf("%d succeeded, %d failed", v.SuccessCount, v.FailedCount)})
	tw.AppendRow(table.Row{"Suggestions", v.SuggestionsGenerated})
	tw.AppendRow(table.Row{"Tickets", v.TicketsGenerated})
	tw.AppendRow(table.Row{"Insights", v.InsightsGenerated})
	if v.Scores != nil {
		s := v.Scores
		tw.AppendRow(table.Row{"Score", fmt.Sprintf("%.0f (technical %.0f, performance %.0f, content %.0f, serp %.0f, authority %.0f)",
			s.Overall, s.Technical, s.Performance, s.Content, s.SERP, s.Authority)})
	}
	if v.LimitedVisibility {
		tw.AppendRow(table.Row{"Unavailable", strings.Join(v.UnavailableSources, ", ")})
	}
	if v.FailureReason != nil {
		tw.AppendRow(table.Row{"Failure", *v.FailureReason})
	}
	tw.AppendRow(table.Row{"Created", v.CreatedAt.Format(time.RFC3339)})
	if v.CompletedAt != nil {
		tw.AppendRow(table.Row{"Completed", v.CompletedAt.Format(time.RFC3339)})
	}
	tw.Render()

	if len(v.WorkerStatuses) == 0 {
		return
	}
	keys := make([]string, 0, len(v.WorkerStatuses))
	for k := range v.WorkerStatuses {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	wt := c.newTable("")
	wt.AppendHeader(table.Row{"Worker", "Status", "Duration", "Summary", "Error"})
	for _, k := range keys {
		ws := v.WorkerStatuses[k]
		errText := ""
		if ws.Error != nil {
			errText = *ws.Error
		}
		wt.AppendRow(table.Row{k, ws.Status, fmt.Sprintf("%dms", ws.DurationMS), ws.Summary, errText})
	}
	wt.Render()
}

func (c *cli) renderReport(r model.RunReport) {
	c.renderRun(r.Run)

	if len(r.Suggestions) > 0 {
		st := c.newTable("Suggestions")
		st.AppendHeader(table.Row{"Severity", "Category", "Title", "Target"})
		for _, s := range r.Suggestions {
			st.AppendRow(table.Row{s.Severity, s.Category, s.Title, s.TargetURL})
		}
		st.Render()
	}
	if len(r.Tickets) > 0 {
		tt := c.newTable("Tickets")
		tt.AppendHeader(table.Row{"Priority", "Owner", "Title"})
		for _, t := range r.Tickets {
			tt.AppendRow(table.Row{t.Priority, t.Owner, t.Title})
		}
		tt.Render()
	}
	if len(r.Insights) > 0 {
		it := c.newTable("Insights")
		it.AppendHeader(table.Row{"Worker", "Metric", "Message"})
		for _, i := range r.Insights {
			it.AppendRow(table.Row{i.WorkerKey, i.Metric, i.Message})
		}
		it.Render()
	}
}

func (c *cli) renderSiteHealth(v model.SiteHealthView) {
	at := c.newTable("Agents for " + v.Site.Domain)
	at.AppendHeader(table.Row{"Agent", "Health", "Consecutive Failures", "Last Error"})
	for _, a := range v.Agents {
		lastErr := ""
		if a.LastError != nil {
			lastErr = *a.LastError
		}
		at.AppendRow(table.Row{a.Agent, a.Health, a.ConsecutiveFailures, lastErr})
	}
	at.Render()

	ft := c.newTable("Sources")
	ft.AppendHeader(table.Row{"Worker", "Last Success", "Stale"})
	for _, s := range v.Sources {
		last := "never"
		if s.LastSuccessAt != nil {
			last = s.LastSuccessAt.Format(time.RFC3339)
		}
		ft.AppendRow(table.Row{s.WorkerKey, last, s.Stale})
	}
	ft.Render()
}

func (c *cli) renderWorkers(workers []model.WorkerInfo) {
	tw := c.newTable("")
	tw.AppendHeader(table.Row{"Key", "Agent", "Endpoint", "Timeout", "Key Required", "Resolvable"})
	for _, w := range workers {
		tw.AppendRow(table.Row{w.Key, w.Agent, w.RunEndpoint, fmt.Sprintf("%dms", w.TimeoutMS), w.RequiresKey, w.Resolvable})
	}
	tw.Render()
}
