// Package agentclient invokes candidate sales agents over HTTP.
//
// Invoke never returns an error: a call that fails after every retry yields
// the Fallback response with Result.Failed set, so one broken agent cannot
// abort a run.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/salesbench/internal/llmjson"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/retry"
	"github.com/ashita-ai/salesbench/internal/telemetry"
)

const maxResponseBytes = 1 << 20

var tracer = otel.Tracer("salesbench/agentclient")

// ArtifactRef advertises an artifact the agent may request, without content.
type ArtifactRef struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// wireRequest is the JSON body POSTed to a candidate agent.
type wireRequest struct {
	CheckpointID       string            `json:"checkpoint_id"`
	DealContext        model.DealContext `json:"deal_context"`
	Question           string            `json:"question"`
	Turn               int               `json:"turn,omitempty"`
	MaxTurns           int               `json:"max_turns,omitempty"`
	AvailableArtifacts []ArtifactRef     `json:"available_artifacts,omitempty"`
	Artifacts          []model.Artifact  `json:"artifacts,omitempty"`
}

// Request describes one call to a candidate agent.
type Request struct {
	Endpoint string
	APIKey   string
	Scenario model.Scenario

	// Multi-turn fields. Turn is zero for single-turn calls.
	Turn      int
	MaxTurns  int
	Artifacts []model.Artifact

	Class retry.PayloadClass
}

// Result is the outcome of Invoke. Response is always usable.
type Result struct {
	Response  model.CandidateResponse
	Failed    bool
	Err       error
	Attempts  int
	LatencyMs int64
}

// Client calls candidate agents. Safe for concurrent use.
type Client struct {
	http     *http.Client
	logger   *slog.Logger
	policyFn func(retry.PayloadClass) retry.Policy

	attempts otelmetric.Int64Counter
	latency  otelmetric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for agent calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPolicy overrides the retry policy per payload class.
func WithPolicy(fn func(retry.PayloadClass) retry.Policy) Option {
	return func(c *Client) { c.policyFn = fn }
}

// New creates a Client.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{},
		logger:   logger,
		policyFn: retry.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := telemetry.Meter("salesbench/agentclient")
	c.attempts, _ = meter.Int64Counter("salesbench.agent.attempts",
		otelmetric.WithDescription("Candidate agent call attempts by outcome"))
	c.latency, _ = meter.Float64Histogram("salesbench.agent.latency",
		otelmetric.WithUnit("ms"))
	return c
}

// Invoke sends the scenario to the agent, retrying under the policy for
// req.Class, and returns the normalized response or the fallback.
func (c *Client) Invoke(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "agentclient.Invoke", trace.WithAttributes(
		attribute.String("salesbench.checkpoint_id", req.Scenario.ID),
		attribute.Int("salesbench.turn", req.Turn),
	))
	defer span.End()

	start := time.Now()
	body, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		err = fmt.Errorf("agentclient: encode request: %w", err)
		return c.fail(ctx, span, req, err, 0, start)
	}

	var attempts atomic.Int32
	policy := c.policyFn(req.Class)
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("agent call failed, retrying",
			"checkpoint_id", req.Scenario.ID,
			"endpoint", req.Endpoint,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err)
	}

	resp, err := retry.Value(ctx, policy, func(ctx context.Context) (model.CandidateResponse, error) {
		attempts.Add(1)
		resp, err := c.attempt(ctx, req, body)
		c.recordAttempt(ctx, err)
		return resp, err
	})
	if err != nil {
		return c.fail(ctx, span, req, err, int(attempts.Load()), start)
	}

	latency := time.Since(start).Milliseconds()
	if c.latency != nil {
		c.latency.Record(ctx, float64(latency))
	}
	c.logger.Debug("agent call succeeded",
		"checkpoint_id", req.Scenario.ID,
		"attempts", attempts.Load(),
		"latency_ms", latency)
	return Result{Response: resp, Attempts: int(attempts.Load()), LatencyMs: latency}
}

func (c *Client) fail(ctx context.Context, span trace.Span, req Request, err error, attempts int, start time.Time) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, "agent call failed")
	c.logger.Error("agent call exhausted, using fallback response",
		"checkpoint_id", req.Scenario.ID,
		"endpoint", req.Endpoint,
		"attempts", attempts,
		"error", err)
	latency := time.Since(start).Milliseconds()
	if c.latency != nil {
		c.latency.Record(ctx, float64(latency))
	}
	return Result{
		Response:  Fallback(err),
		Failed:    true,
		Err:       err,
		Attempts:  attempts,
		LatencyMs: latency,
	}
}

func (c *Client) recordAttempt(ctx context.Context, err error) {
	if c.attempts == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.attempts.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// attempt performs one HTTP round trip. Any non-2xx status, unreadable body,
// or body without a decodable JSON object is a failure.
func (c *Client) attempt(ctx context.Context, req Request, body []byte) (model.CandidateResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: agent returned HTTP %d: %s",
			resp.StatusCode, truncate(string(data), 200))
	}

	obj, err := llmjson.ExtractObject(string(data))
	if err != nil {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: %w", err)
	}
	return Normalize([]byte(obj))
}

func buildWireRequest(req Request) wireRequest {
	w := wireRequest{
		CheckpointID: req.Scenario.ID,
		DealContext:  req.Scenario.Context,
		Question:     req.Scenario.EffectiveQuestion(),
	}
	if req.Turn > 0 {
		w.Turn = req.Turn
		w.MaxTurns = req.MaxTurns
		w.Artifacts = req.Artifacts
		for _, a := range req.Scenario.Artifacts {
			w.AvailableArtifacts = append(w.AvailableArtifacts, ArtifactRef{ID: a.ID, Type: a.Type, Title: a.Title})
		}
	}
	return w
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
