package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/report"
)

func newAgentsCmd(a *app) *cobra.Command {
	var format, dbPath string
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer closeStore()
			if store == nil {
				return fmt.Errorf("no run store configured")
			}
			agents, err := store.ListAgents(ctx)
			if err != nil {
				return err
			}
			return report.Agents(agents, format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format: table, markdown or json")
	cmd.Flags().StringVar(&dbPath, "db", "salesbench.db", "SQLite database path when DATABASE_URL is unset")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit          int
		format, dbPath string
	)
	cmd := &cobra.Command{
		Use:   "history AGENT_ID",
		Short: "Show an agent's most recent persisted runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			if err := model.ValidateAgentID(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer closeStore()
			if store == nil {
				return fmt.Errorf("no run store configured")
			}
			runs, err := store.ListRuns(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return report.History(runs, format, os.Stdout)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format: table, markdown or json")
	cmd.Flags().StringVar(&dbPath, "db", "salesbench.db", "SQLite database path when DATABASE_URL is unset")
	return cmd
}
