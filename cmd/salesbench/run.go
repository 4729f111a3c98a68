package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/report"
)

type runFlags struct {
	endpoint  string
	agentID   string
	name      string
	apiKeyEnv string
	mode      string
	multiTurn bool
	format    string
	dbPath    string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate one agent and print its scores",
		Example: `  salesbench run --endpoint http://localhost:5000/analyze
  salesbench run --agent-id acme-bot --mode full --multi-turn --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !report.ValidFormat(f.format) {
				return fmt.Errorf("unknown format %q", f.format)
			}
			if f.endpoint == "" && f.agentID == "" {
				return fmt.Errorf("--endpoint or --agent-id is required")
			}
			return a.runOne(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "agent analyze URL")
	cmd.Flags().StringVar(&f.agentID, "agent-id", "", "agent id (looked up in the registry when --endpoint is omitted)")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.apiKeyEnv, "api-key-env", "", "environment variable holding the agent's bearer token")
	cmd.Flags().StringVar(&f.mode, "mode", string(model.ModePublic), "scenario set: public, private or full")
	cmd.Flags().BoolVar(&f.multiTurn, "multi-turn", false, "run multi-turn sessions")
	cmd.Flags().StringVar(&f.format, "format", report.FormatTable, "output format: table, markdown or json")
	cmd.Flags().StringVar(&f.dbPath, "db", "salesbench.db", "SQLite database path when DATABASE_URL is unset (empty: no persistence)")
	return cmd
}

func (a *app) runOne(ctx context.Context, f *runFlags) error {
	spec := model.AgentSpec{AgentID: f.agentID, Name: f.name, Endpoint: f.endpoint}
	if f.apiKeyEnv != "" {
		spec.APIKey = os.Getenv(f.apiKeyEnv)
		if spec.APIKey == "" {
			return fmt.Errorf("%s is not set", f.apiKeyEnv)
		}
	}

	store, closeStore, err := a.openStore(ctx, f.dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.buildEngine(ctx, store, nil)
	if err != nil {
		return err
	}
	job, err := engine.Prepare(ctx, []model.AgentSpec{spec}, f.mode, f.multiTurn)
	if err != nil {
		return err
	}

	outcome := engine.EvaluateAgent(ctx, job, progressPrinter(os.Stderr))
	if outcome.Cancelled {
		return ctx.Err()
	}
	summary := outcome.Summary()
	if err := report.Runs([]progress.RunSummary{summary}, f.format, os.Stdout); err != nil {
		return err
	}
	if f.format == report.FormatJSON {
		return nil
	}
	fmt.Fprintln(os.Stdout)
	return report.Dimensions(summary, os.Stdout)
}
