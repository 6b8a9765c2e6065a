package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/kensa/internal/model"
)

func (c *cli) scanCmd() *cobra.Command {
	var (
		mode         string
		force, async bool
		wait         bool
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan <domain>",
		Short: "Start a diagnostic run for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			resp, err := cl.StartRun(ctx, model.StartRunRequest{
				Domain: args[0],
				Mode:   mode,
				Force:  force,
				Async:  async,
			})
			if err != nil {
				return err
			}

			view := resp.Run
			if async && wait && !resp.Status.Terminal() {
				view, err = c.waitForRun(ctx, resp.RunID, pollInterval)
				if err != nil {
					return err
				}
			}
			if c.v.GetBool("json") {
				return c.printJSON(model.StartRunResponse{
					RunID:        resp.RunID,
					Status:       view.Status,
					Deduplicated: resp.Deduplicated,
					Run:          view,
				})
			}
			if resp.Deduplicated {
				fmt.Fprintf(c.out, "Reusing run %s from today (use --force for a new one)\n", resp.RunID)
			}
			c.renderRun(view)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeLight), "scan mode: light or full")
	cmd.Flags().BoolVar(&force, "force", false, "start a new run even if one exists today")
	cmd.Flags().BoolVar(&async, "async", false, "return as soon as the run is queued")
	cmd.Flags().BoolVar(&wait, "wait", false, "with --async, poll until the run finishes")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "status poll interval for --wait")
	return cmd
}

// waitForRun polls the run until it reaches a terminal status.
func (c *cli) waitForRun(ctx context.Context, runID uuid.UUID, every time.Duration) (model.RunStatusView, error) {
	cl, err := c.client()
	if err != nil {
		return model.RunStatusView{}, err
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		view, err := cl.GetRun(ctx, runID)
		if err != nil {
			return view, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			view, err := cl.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(view)
			}
			c.renderRun(view)
			return nil
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Show suggestions, tickets and insights of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			report, err := cl.Report(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(report)
			}
			c.renderReport(report)
			return nil
		},
	}
}

func (c *cli) siteHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <domain>",
		Short: "Show agent health and source freshness for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			view, err := cl.SiteHealth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(view)
			}
			c.renderSiteHealth(view)
			return nil
		},
	}
}

func (c *cli) workersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List configured workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			workers, err := cl.Workers(cmd.Context())
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(workers)
			}
			c.renderWorkers(workers)
			return nil
		},
	}
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server and its store are up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			h, err := cl.Health(cmd.Context())
			if h.Status != "" {
				if c.v.GetBool("json") {
					if perr := c.printJSON(h); perr != nil {
						return perr
					}
				} else {
					fmt.Fprintf(c.out, "%s: version %s, %s store %s, %d workers, up %s\n",
						h.Status, h.Version, h.Storage, h.Database, h.Workers,
						(time.Duration(h.Uptime) * time.Second).String())
				}
			}
			return err
		},
	}
}

func parseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}
