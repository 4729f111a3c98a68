// Package judge scores candidate answers with a panel of independent LLM
// judges and aggregates their verdicts.
//
// Every judge sees the same prompt. Judges run in parallel; a judge that
// fails after its retries contributes an all-zero verdict rather than
// shrinking the panel, so the mean is always taken over the configured size.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/retry"
	"github.com/ashita-ai/salesbench/internal/telemetry"
)

// Model is a judge model: it turns a prompt into free-form text.
type Model interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyPanel is returned when a panel is built without judges.
var ErrEmptyPanel = errors.New("judge: panel has no judges")

var tracer = telemetry.Tracer("salesbench/judge")

// Input is one candidate answer to be judged.
type Input struct {
	Scenario model.Scenario
	Response model.CandidateResponse
}

// Panel is a fixed, ordered set of judges. Safe for concurrent use.
type Panel struct {
	judges []Model
	policy retry.Policy
	logger *slog.Logger

	failures otelmetric.Int64Counter
	latency  otelmetric.Float64Histogram
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithPolicy overrides the retry policy for judge calls.
func WithPolicy(p retry.Policy) PanelOption {
	return func(pn *Panel) { pn.policy = p }
}

// NewPanel builds a panel. Judge names must be unique.
func NewPanel(judges []Model, logger *slog.Logger, opts ...PanelOption) (*Panel, error) {
	if len(judges) == 0 {
		return nil, ErrEmptyPanel
	}
	seen := make(map[string]bool, len(judges))
	for _, j := range judges {
		if seen[j.Name()] {
			return nil, fmt.Errorf("judge: duplicate judge name %q", j.Name())
		}
		seen[j.Name()] = true
	}

	p := &Panel{
		judges: judges,
		policy: retry.DefaultPolicy(retry.Standard),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	meter := telemetry.Meter("salesbench/judge")
	p.failures, _ = meter.Int64Counter("salesbench.judge.failures",
		otelmetric.WithDescription("Judge calls that degraded to a zero verdict"))
	p.latency, _ = meter.Float64Histogram("salesbench.judge.latency", otelmetric.WithUnit("ms"))
	return p, nil
}

// Size returns the number of configured judges.
func (p *Panel) Size() int { return len(p.judges) }

// Names returns the judge names in panel order.
func (p *Panel) Names() []string {
	names := make([]string, len(p.judges))
	for i, j := range p.judges {
		names[i] = j.Name()
	}
	return names
}

// Evaluate asks every judge in parallel and aggregates the verdicts.
// It never fails: judge errors degrade to zero verdicts.
func (p *Panel) Evaluate(ctx context.Context, in Input) model.AggregatedVerdict {
	ctx, span := tracer.Start(ctx, "judge.Evaluate", trace.WithAttributes(
		attribute.String("salesbench.checkpoint_id", in.Scenario.ID),
		attribute.Int("salesbench.judges", len(p.judges)),
	))
	defer span.End()

	dims := model.Dimensions(in.Scenario.EffectiveTaskType())
	prompt := BuildPrompt(in.Scenario, in.Response)

	verdicts := make([]model.JudgeVerdict, len(p.judges))
	var g errgroup.Group
	for i, j := range p.judges {
		g.Go(func() error {
			verdicts[i] = p.ask(ctx, j, prompt, dims, in.Scenario.ID)
			return nil
		})
	}
	_ = g.Wait()

	return Aggregate(verdicts, dims, in.Scenario.Visibility)
}

func (p *Panel) ask(ctx context.Context, j Model, prompt string, dims []model.Dimension, scenarioID string) model.JudgeVerdict {
	start := time.Now()
	policy := p.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn("judge call failed, retrying",
			"judge", j.Name(), "checkpoint_id", scenarioID,
			"attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
	}

	v, err := retry.Value(ctx, policy, func(ctx context.Context) (model.JudgeVerdict, error) {
		text, err := j.Complete(ctx, prompt)
		if err != nil {
			return model.JudgeVerdict{}, fmt.Errorf("judge: %s: complete: %w", j.Name(), err)
		}
		return ParseReply(j.Name(), text, dims)
	})
	latency := time.Since(start).Milliseconds()
	if p.latency != nil {
		p.latency.Record(ctx, float64(latency), otelmetric.WithAttributes(attribute.String("judge", j.Name())))
	}

	if err != nil {
		p.logger.Error("judge failed, recording zero verdict",
			"judge", j.Name(), "checkpoint_id", scenarioID, "error", err)
		if p.failures != nil {
			p.failures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("judge", j.Name())))
		}
		v = failedVerdict(j.Name(), dims, err)
	}
	v.LatencyMs = latency
	return v
}
