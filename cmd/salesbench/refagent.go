package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/salesbench/internal/judge"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/refagent"
)

type refAgentFlags struct {
	port      int
	provider  string
	model     string
	baseURL   string
	apiKeyEnv string
	agentKey  string
}

func newRefAgentCmd(a *app) *cobra.Command {
	f := &refAgentFlags{}
	cmd := &cobra.Command{
		Use:   "refagent",
		Short: "Serve the reference sales-analysis agent",
		Long: `Serve an LLM-backed agent that speaks the candidate agent protocol on
POST /analyze. Point "salesbench run --endpoint" at it to get a baseline.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serveRefAgent(cmd.Context(), f)
		},
	}
	cmd.Flags().IntVar(&f.port, "port", 5000, "listen port")
	cmd.Flags().StringVar(&f.provider, "provider", "openai", "LLM provider: openai, anthropic or googleai")
	cmd.Flags().StringVar(&f.model, "model", "gpt-4o", "model name")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "provider base URL override")
	cmd.Flags().StringVar(&f.apiKeyEnv, "api-key-env", "OPENAI_API_KEY", "environment variable holding the provider key")
	cmd.Flags().StringVar(&f.agentKey, "agent-key", "", "bearer token callers must present (empty: open)")
	return cmd
}

func (a *app) serveRefAgent(ctx context.Context, f *refAgentFlags) error {
	key := os.Getenv(f.apiKeyEnv)
	if key == "" {
		return fmt.Errorf("%s is not set", f.apiKeyEnv)
	}
	llm, err := judge.NewChatModel(ctx, model.JudgeConfig{
		Name:      "refagent",
		Provider:  f.provider,
		Model:     f.model,
		BaseURL:   f.baseURL,
		APIKeyEnv: f.apiKeyEnv,
		APIKey:    key,
	})
	if err != nil {
		return fmt.Errorf("refagent: %w", err)
	}

	agent := refagent.New(llm, f.agentKey, a.logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", f.port),
		Handler:           agent.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("reference agent listening", "addr", srv.Addr, "provider", f.provider, "model", f.model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
