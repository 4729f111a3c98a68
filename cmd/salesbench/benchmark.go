package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/report"
	"github.com/ashita-ai/salesbench/internal/validation"
)

// agentEntry is one agent in a benchmark agents file.
type agentEntry struct {
	AgentID   string `yaml:"agent_id" validate:"required,max=128"`
	Name      string `yaml:"name" validate:"omitempty,max=200"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type agentsFile struct {
	Agents []agentEntry `yaml:"agents" validate:"required,min=1,max=50,dive"`
}

// readAgentsFile parses an agents file into specs, resolving each
// api_key_env through getenv.
func readAgentsFile(path string, getenv func(string) string) ([]model.AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f agentsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}
	if err := validation.Struct(f); err != nil {
		return nil, fmt.Errorf("agents file %s: %w", path, err)
	}

	specs := make([]model.AgentSpec, 0, len(f.Agents))
	for _, e := range f.Agents {
		spec := model.AgentSpec{AgentID: e.AgentID, Name: e.Name, Endpoint: e.Endpoint}
		if e.APIKeyEnv != "" {
			spec.APIKey = getenv(e.APIKeyEnv)
			if spec.APIKey == "" {
				return nil, fmt.Errorf("agents file %s: agent %s: %s is not set", path, e.AgentID, e.APIKeyEnv)
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func newBenchmarkCmd(a *app) *cobra.Command {
	var (
		mode      string
		multiTurn bool
		format    string
		dbPath    string
	)
	cmd := &cobra.Command{
		Use:   "benchmark AGENTS_FILE",
		Short: "Evaluate several agents concurrently and compare them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			specs, err := readAgentsFile(args[0], os.Getenv)
			if err != nil {
				return err
			}
			return a.benchmark(cmd.Context(), specs, mode, multiTurn, format, dbPath)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(model.ModePublic), "scenario set: public, private or full")
	cmd.Flags().BoolVar(&multiTurn, "multi-turn", false, "run multi-turn sessions")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format: table, markdown or json")
	cmd.Flags().StringVar(&dbPath, "db", "salesbench.db", "SQLite database path when DATABASE_URL is unset (empty: no persistence)")
	return cmd
}

func (a *app) benchmark(ctx context.Context, specs []model.AgentSpec, mode string, multiTurn bool, format, dbPath string) error {
	store, closeStore, err := a.openStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.buildEngine(ctx, store, nil)
	if err != nil {
		return err
	}
	job, err := engine.Prepare(ctx, specs, mode, multiTurn)
	if err != nil {
		return err
	}

	outcomes := engine.Benchmark(ctx, job, progressPrinter(os.Stderr))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	summaries := make([]progress.RunSummary, 0, len(outcomes))
	for _, o := range outcomes {
		summaries = append(summaries, o.Summary())
	}
	return report.Runs(summaries, format, os.Stdout)
}
