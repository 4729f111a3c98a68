package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/report"
)

func newLeaderboardCmd(a *app) *cobra.Command {
	var (
		mode   string
		limit  int
		format string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show each agent's best persisted run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			m, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			if limit < 1 || limit > 500 {
				return fmt.Errorf("--limit must be between 1 and 500")
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
			entries, err := store.Leaderboard(ctx, m, limit)
			if err != nil {
				return err
			}
			return report.Leaderboard(entries, format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(model.ModePublic), "scenario set: public, private or full")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format: table, markdown or json")
	cmd.Flags().StringVar(&dbPath, "db", "salesbench.db", "SQLite database path when DATABASE_URL is unset")
	return cmd
}
