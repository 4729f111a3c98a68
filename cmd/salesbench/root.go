package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/config"
)

// app carries what every subcommand needs after config is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

var (
	flagDataDir string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "salesbench",
		Short:         "Benchmark sales-analysis agents against real deal checkpoints",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file is optional; production has none.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("data") {
				cfg.DataDir = flagDataDir
			}
			a.cfg = cfg

			level := cfg.SlogLevel()
			if flagVerbose {
				level = slog.LevelDebug
			}
			a.logger = newLogger(cmd.Name() == "serve", os.Stderr, level)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data", "data", "scenario data directory (overrides SALESBENCH_DATA_DIR)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newBenchmarkCmd(a))
	root.AddCommand(newLeaderboardCmd(a))
	root.AddCommand(newScenariosCmd(a))
	root.AddCommand(newAgentsCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newRefAgentCmd(a))
	return root
}

// newLogger returns a JSON logger on stdout for the server and a text logger
// on w for interactive commands.
func newLogger(server bool, w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if server {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
