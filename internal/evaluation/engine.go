// Package evaluation runs candidate agents against the scenario suite.
//
// An Engine drives every scenario of a job through the agent (single call or
// multi-turn session), has the judge panel score the answer, aggregates the
// scores into a run and lets the failure policy decide whether the run is
// persisted. Progress is streamed as units complete.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/judge"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/registry"
	"github.com/ashita-ai/salesbench/internal/retry"
	"github.com/ashita-ai/salesbench/internal/scenario"
	"github.com/ashita-ai/salesbench/internal/scheduler"
	"github.com/ashita-ai/salesbench/internal/scoring"
	"github.com/ashita-ai/salesbench/internal/session"
	"github.com/ashita-ai/salesbench/internal/telemetry"
)

var tracer = otel.Tracer("salesbench/evaluation")

// Defaults for the two concurrency ceilings.
const (
	DefaultScenarioConcurrency = 5
	DefaultAgentConcurrency    = 3
)

// Reasons reported on a run that was not persisted for reasons other than
// the failure policy.
const (
	ReasonPersistenceFailed = "persistence failed"
	ReasonNoStore           = "no run store configured"
	ReasonCancelled         = "evaluation cancelled"
)

// Invoker calls a candidate agent once. *agentclient.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req agentclient.Request) agentclient.Result
}

// SessionRunner runs a multi-turn session. *session.Orchestrator satisfies it.
type SessionRunner interface {
	Run(ctx context.Context, target session.Target, s model.Scenario) (model.SessionResult, error)
}

// Judge scores a candidate answer. *judge.Panel satisfies it.
type Judge interface {
	Evaluate(ctx context.Context, in judge.Input) model.AggregatedVerdict
}

// RunStore persists finished runs and returns the assigned run id.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.Run, results []model.ScenarioResult) (int64, error)
}

// Engine evaluates agents. Safe for concurrent use; every job keeps its own
// aggregator, failure tracker and progress stream.
type Engine struct {
	suite    *scenario.Suite
	agents   Invoker
	sessions SessionRunner
	panel    Judge
	store    RunStore
	registry registry.Store
	watchers progress.Emitter
	policy   scoring.FailurePolicy
	logger   *slog.Logger

	scenarioLimit int
	agentLimit    int

	unitCounter otelmetric.Int64Counter
	unitLatency otelmetric.Float64Histogram
	runCounter  otelmetric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the run store. Without one, runs are never persisted.
func WithStore(s RunStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithRegistry lets jobs name agents by id alone.
func WithRegistry(r registry.Store) Option {
	return func(e *Engine) { e.registry = r }
}

// WithWatchers publishes every event to w in addition to the job's own
// stream.
func WithWatchers(w progress.Emitter) Option {
	return func(e *Engine) { e.watchers = w }
}

// WithFailurePolicy overrides the default failure threshold.
func WithFailurePolicy(p scoring.FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithConcurrency sets the scenario ceiling, shared by every agent of a job,
// and the per-benchmark agent ceiling. Values below 1 keep the defaults.
func WithConcurrency(scenarios, agents int) Option {
	return func(e *Engine) {
		if scenarios > 0 {
			e.scenarioLimit = scenarios
		}
		if agents > 0 {
			e.agentLimit = agents
		}
	}
}

// WithSessions overrides the multi-turn session runner.
func WithSessions(s SessionRunner) Option {
	return func(e *Engine) { e.sessions = s }
}

// New creates an Engine over a loaded suite. Multi-turn jobs use a
// session.Orchestrator over agents unless WithSessions is given.
func New(suite *scenario.Suite, agents Invoker, panel Judge, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		suite:         suite,
		agents:        agents,
		panel:         panel,
		watchers:      progress.Discard,
		policy:        scoring.FailurePolicy{Threshold: scoring.DefaultFailureThreshold},
		logger:        logger,
		scenarioLimit: DefaultScenarioConcurrency,
		agentLimit:    DefaultAgentConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = session.New(agents, session.DefaultMaxTurns, logger)
	}

	meter := telemetry.Meter("salesbench/evaluation")
	e.unitCounter, _ = meter.Int64Counter("salesbench.evaluation.units",
		otelmetric.WithDescription("Scenario units evaluated by outcome"))
	e.unitLatency, _ = meter.Float64Histogram("salesbench.evaluation.unit.latency",
		otelmetric.WithUnit("ms"))
	e.runCounter, _ = meter.Int64Counter("salesbench.evaluation.runs",
		otelmetric.WithDescription("Finished runs by persistence outcome"))
	return e
}

// Suite returns the scenario suite the engine evaluates against.
func (e *Engine) Suite() *scenario.Suite { return e.suite }

// Policy returns the failure policy applied to finished runs.
func (e *Engine) Policy() scoring.FailurePolicy { return e.policy }

// Outcome is the result of evaluating one agent.
type Outcome struct {
	Run       model.Run
	Results   []model.ScenarioResult
	Decision  scoring.Decision
	Persisted bool
	Reason    string
	Cancelled bool
}

// Summary reports the outcome as it appears on the progress stream.
func (o Outcome) Summary() progress.RunSummary {
	return progress.RunSummary{
		RunID:             o.Run.ID,
		AgentID:           o.Run.AgentID,
		AgentName:         o.Run.AgentName,
		FinalScore:        o.Run.TotalScore,
		MaxScore:          o.Run.MaxScore,
		Percentage:        o.Run.Percentage,
		AvgLatencyMs:      o.Run.AvgLatencyMs,
		ScenarioCount:     o.Run.ScenarioCount,
		FailedCount:       o.Run.FailedCount,
		FailureRate:       o.Decision.Rate,
		Persisted:         o.Persisted,
		Reason:            o.Reason,
		DimensionAverages: o.Run.DimensionAverages,
	}
}

// EvaluateAgent runs job's first agent over the job's scenarios. Unit events
// go to out in completion order, followed by one complete event (or an error
// event when ctx was cancelled). A failing out does not stop the run.
func (e *Engine) EvaluateAgent(ctx context.Context, job *Job, out progress.Emitter) Outcome {
	stream := progress.NewStream(progress.Multi(out, e.watchers), len(job.Scenarios))
	o := e.runAgent(ctx, job, job.Agents[0], stream, e.scenarioPool())
	if o.Cancelled {
		_ = stream.Close(progress.NewErrorEvent(job.Key, ReasonCancelled))
	} else {
		_ = stream.Close(progress.NewCompleteEvent(job.Key, o.Summary()))
	}
	return o
}

// Benchmark evaluates every agent of job, at most the agent ceiling at a
// time. out receives one agent_complete event per agent and a final complete
// event carrying every agent's summary. Per-scenario events go to watchers
// only.
func (e *Engine) Benchmark(ctx context.Context, job *Job, out progress.Emitter) []Outcome {
	ctx, span := tracer.Start(ctx, "evaluation.Benchmark")
	defer span.End()
	span.SetAttributes(attribute.Int("salesbench.agents", len(job.Agents)))

	stream := progress.NewStream(progress.Multi(out, e.watchers), len(job.Agents))
	// One scenario pool for the whole benchmark: the scenario ceiling bounds
	// agent calls across all agents, not per agent.
	scenarios := e.scenarioPool()
	outcomes := make([]Outcome, len(job.Agents))
	emitted := make([]bool, len(job.Agents))

	report := func(i int, o Outcome) {
		outcomes[i] = o
		emitted[i] = true
		_ = stream.Unit(func(p progress.Progress) progress.Event {
			return progress.AgentCompleteEvent{
				Type:       progress.EventAgentComplete,
				RunKey:     job.Key,
				RunSummary: o.Summary(),
				Progress:   p,
			}
		})
	}

	units := make([]scheduler.Unit, len(job.Agents))
	for i, t := range job.Agents {
		units[i] = func(ctx context.Context) error {
			unitStream := progress.NewStream(e.watchers, len(job.Scenarios))
			report(i, e.runAgent(ctx, job, t, unitStream, scenarios))
			return nil
		}
	}

	errs := scheduler.New("agents", e.agentLimit).Run(ctx, units)
	for i, err := range errs {
		if err == nil || emitted[i] {
			continue
		}
		t := job.Agents[i]
		e.logger.Error("benchmark agent aborted",
			"run_key", job.Key, "agent_id", t.AgentID, "error", err)
		report(i, Outcome{
			Run:       model.Run{AgentID: t.AgentID, AgentName: t.Name, Endpoint: t.Endpoint, Mode: job.Mode},
			Reason:    err.Error(),
			Cancelled: ctx.Err() != nil,
		})
	}

	if ctx.Err() != nil {
		_ = stream.Close(progress.NewErrorEvent(job.Key, ReasonCancelled))
		return outcomes
	}
	summaries := make([]progress.RunSummary, len(outcomes))
	for i, o := range outcomes {
		summaries[i] = o.Summary()
	}
	_ = stream.Close(progress.NewBenchmarkCompleteEvent(job.Key, summaries))
	return outcomes
}

func (e *Engine) scenarioPool() *scheduler.Pool {
	return scheduler.New("scenarios", e.scenarioLimit)
}

func (e *Engine) runAgent(ctx context.Context, job *Job, t Target, stream *progress.Stream, pool *scheduler.Pool) Outcome {
	ctx, span := tracer.Start(ctx, "evaluation.Agent")
	defer span.End()
	span.SetAttributes(
		attribute.String("salesbench.agent_id", t.AgentID),
		attribute.String("salesbench.mode", string(job.Mode)),
		attribute.Bool("salesbench.multi_turn", job.MultiTurn),
		attribute.Int("salesbench.scenarios", len(job.Scenarios)),
	)

	start := time.Now()
	e.logger.Info("evaluation started",
		"run_key", job.Key,
		"agent_id", t.AgentID,
		"mode", job.Mode,
		"multi_turn", job.MultiTurn,
		"scenarios", len(job.Scenarios))

	agg := scoring.NewAggregator()
	var tracker scoring.FailureTracker
	results := make([]model.ScenarioResult, len(job.Scenarios))
	recorded := make([]bool, len(job.Scenarios))

	record := func(i int, r model.ScenarioResult) {
		results[i] = r
		recorded[i] = true
		agg.Add(r)
		tracker.Record(r.Failed)
		_ = stream.Unit(func(p progress.Progress) progress.Event {
			ev := progress.NewUnitEvent(job.Key, t.AgentID, r)
			ev.Progress = p
			return ev
		})
	}

	units := make([]scheduler.Unit, len(job.Scenarios))
	for i, sc := range job.Scenarios {
		units[i] = func(ctx context.Context) error {
			record(i, e.evaluateScenario(ctx, job.MultiTurn, t, sc))
			return nil
		}
	}
	errs := pool.Run(ctx, units)
	for i, err := range errs {
		if err == nil || recorded[i] {
			continue
		}
		record(i, abandoned(job.Scenarios[i], job.MultiTurn, err))
	}

	run := model.Run{
		AgentID:     t.AgentID,
		AgentName:   t.Name,
		Endpoint:    t.Endpoint,
		Mode:        job.Mode,
		MultiTurn:   job.MultiTurn,
		SuiteDigest: e.suite.Digest,
		CreatedAt:   time.Now().UTC(),
	}
	agg.Summary().Apply(&run)

	o := Outcome{Run: run, Results: results, Decision: tracker.Decide(e.policy)}
	switch {
	case ctx.Err() != nil:
		o.Cancelled = true
		o.Reason = ReasonCancelled
	case !o.Decision.Persist:
		o.Reason = o.Decision.Reason
		e.logger.Warn("run not persisted",
			"run_key", job.Key,
			"agent_id", t.AgentID,
			"failed", o.Decision.Failed,
			"attempted", o.Decision.Attempted,
			"reason", o.Reason)
	case e.store == nil:
		o.Reason = ReasonNoStore
	default:
		id, err := e.store.SaveRun(ctx, &o.Run, results)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ReasonPersistenceFailed)
			e.logger.Error("save run failed",
				"run_key", job.Key, "agent_id", t.AgentID, "error", err)
			o.Reason = ReasonPersistenceFailed
			break
		}
		o.Run.ID = &id
		o.Persisted = true
	}

	if e.runCounter != nil {
		e.runCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.Bool("persisted", o.Persisted)))
	}
	e.logger.Info("evaluation finished",
		"run_key", job.Key,
		"agent_id", t.AgentID,
		"final_score", o.Run.TotalScore,
		"max_score", o.Run.MaxScore,
		"failed", o.Run.FailedCount,
		"persisted", o.Persisted,
		"duration_ms", time.Since(start).Milliseconds())
	return o
}

// evaluateScenario never fails: agent failures degrade to the fallback answer
// and judge failures to zero scores.
func (e *Engine) evaluateScenario(ctx context.Context, multiTurn bool, t Target, sc model.Scenario) model.ScenarioResult {
	ctx, span := tracer.Start(ctx, "evaluation.Unit")
	defer span.End()
	span.SetAttributes(attribute.String("salesbench.checkpoint_id", sc.ID))

	r := model.ScenarioResult{
		ScenarioID: sc.ID,
		DealID:     sc.DealID,
		Visibility: sc.Visibility,
		TaskType:   sc.EffectiveTaskType(),
		MultiTurn:  multiTurn,
	}

	if multiTurn {
		sr, err := e.sessions.Run(ctx, session.Target{Endpoint: t.Endpoint, APIKey: t.APIKey}, sc)
		r.Response = sr.Response
		r.LatencyMs = sr.LatencyMs
		r.TurnsUsed = sr.TurnsUsed
		r.ArtifactsRequested = sr.ArtifactsRequested
		if err != nil {
			r.Failed = true
			r.Error = err.Error()
		}
	} else {
		res := e.agents.Invoke(ctx, agentclient.Request{
			Endpoint: t.Endpoint,
			APIKey:   t.APIKey,
			Scenario: sc,
			Class:    retry.Standard,
		})
		r.Response = res.Response
		r.LatencyMs = res.LatencyMs
		r.Failed = res.Failed
		if res.Err != nil {
			r.Error = res.Err.Error()
		}
	}

	r.Verdict = e.panel.Evaluate(ctx, judge.Input{Scenario: sc, Response: r.Response})

	outcome := "ok"
	if r.Failed {
		outcome = "failed"
		span.SetStatus(codes.Error, "agent failed")
	}
	if e.unitCounter != nil {
		e.unitCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if e.unitLatency != nil {
		e.unitLatency.Record(ctx, float64(r.LatencyMs))
	}
	e.logger.Debug("scenario evaluated",
		"agent_id", t.AgentID,
		"checkpoint_id", sc.ID,
		"total", r.Verdict.Total,
		"failed", r.Failed,
		"latency_ms", r.LatencyMs)
	return r
}

// abandoned is the result recorded for a unit that never produced one
// (skipped after cancellation or panicked).
func abandoned(sc model.Scenario, multiTurn bool, err error) model.ScenarioResult {
	dims := model.Dimensions(sc.EffectiveTaskType())
	scores := make(map[model.Dimension]float64, len(dims))
	for _, d := range dims {
		scores[d] = 0
	}
	msg := err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("not evaluated: %v", err)
	}
	return model.ScenarioResult{
		ScenarioID: sc.ID,
		DealID:     sc.DealID,
		Visibility: sc.Visibility,
		TaskType:   sc.EffectiveTaskType(),
		MultiTurn:  multiTurn,
		Verdict: model.AggregatedVerdict{
			Scores:   scores,
			MaxScore: model.MaxScore(sc.EffectiveTaskType()),
		},
		Response: agentclient.Fallback(err),
		Failed:   true,
		Error:    msg,
	}
}
