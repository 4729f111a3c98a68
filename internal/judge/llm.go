package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/ashita-ai/salesbench/internal/model"
)

const defaultMaxTokens = 2048

// LLMJudge is a Model backed by a langchaingo provider, paced by an
// optional per-judge rate limit.
type LLMJudge struct {
	name      string
	llm       llms.Model
	limiter   *rate.Limiter
	maxTokens int
}

// NewLLMJudge wraps an existing langchaingo model. rpm <= 0 disables pacing.
func NewLLMJudge(name string, llm llms.Model, rpm, maxTokens int) *LLMJudge {
	j := &LLMJudge{name: name, llm: llm, maxTokens: maxTokens}
	if j.maxTokens <= 0 {
		j.maxTokens = defaultMaxTokens
	}
	if rpm > 0 {
		j.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return j
}

// NewFromConfig builds the provider client named by cfg.Provider.
func NewFromConfig(ctx context.Context, cfg model.JudgeConfig) (*LLMJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("judge: %s: %s is not set", cfg.Name, cfg.APIKeyEnv)
	}
	llm, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("judge: %s: %w", cfg.Name, err)
	}
	return NewLLMJudge(cfg.Name, llm, cfg.RequestsPerMinute, cfg.MaxTokens), nil
}

// NewChatModel creates the langchaingo client for cfg's provider and model.
func NewChatModel(ctx context.Context, cfg model.JudgeConfig) (llms.Model, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	case "googleai":
		llm, err = googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(cfg.Model))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}
	return llm, nil
}

// BuildModels builds one LLMJudge per config entry, in order.
func BuildModels(ctx context.Context, cfgs []model.JudgeConfig) ([]Model, error) {
	judges := make([]Model, 0, len(cfgs))
	for _, c := range cfgs {
		j, err := NewFromConfig(ctx, c)
		if err != nil {
			return nil, err
		}
		judges = append(judges, j)
	}
	return judges, nil
}

// Name implements Model.
func (j *LLMJudge) Name() string { return j.name }

// Complete implements Model. Judges run at temperature 0.
func (j *LLMJudge) Complete(ctx context.Context, prompt string) (string, error) {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("judge: %s: rate limit wait: %w", j.name, err)
		}
	}
	return llms.GenerateFromSinglePrompt(ctx, j.llm, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(j.maxTokens),
	)
}
