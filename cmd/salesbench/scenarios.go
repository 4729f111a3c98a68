package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/report"
	"github.com/ashita-ai/salesbench/internal/scenario"
)

func newScenariosCmd(a *app) *cobra.Command {
	var mode, format string
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the checkpoints in the scenario suite",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			m, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			suite, err := scenario.Load(a.cfg.DataDir)
			if err != nil {
				return err
			}
			if format != report.FormatJSON {
				fmt.Fprintf(os.Stderr, "suite %s: %d deals\n", suite.Digest, suite.Deals())
			}
			return report.Scenarios(suite.Filter(m), format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeFull), "scenario set: public, private or full")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format: table, markdown or json")
	return cmd
}
