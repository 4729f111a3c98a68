// Package session drives the bounded multi-turn protocol in which a
// candidate agent may request supplementary evidence before answering.
//
// Each turn re-sends the scenario plus every artifact supplied so far. The
// session ends when the agent marks its answer complete, when the turn budget
// is spent, or when a call fails after retries.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/retry"
)

// DefaultMaxTurns bounds a session when no limit is configured.
const DefaultMaxTurns = 5

// ErrAgentFailed is wrapped by the error returned when a turn's agent call
// failed. The session's final response is then the fallback response.
var ErrAgentFailed = errors.New("session: agent call failed")

// Invoker calls a candidate agent. *agentclient.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req agentclient.Request) agentclient.Result
}

// Target identifies the agent a session talks to.
type Target struct {
	Endpoint string
	APIKey   string
}

// Orchestrator runs multi-turn sessions. Safe for concurrent use; every Run
// keeps its own state.
type Orchestrator struct {
	client   Invoker
	maxTurns int
	logger   *slog.Logger
}

// New creates an Orchestrator. maxTurns <= 0 selects DefaultMaxTurns.
func New(client Invoker, maxTurns int, logger *slog.Logger) *Orchestrator {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Orchestrator{client: client, maxTurns: maxTurns, logger: logger}
}

// MaxTurns returns the turn budget.
func (o *Orchestrator) MaxTurns() int { return o.maxTurns }

// Run executes one session. The returned result is always populated; err is
// non-nil only for the failed outcome.
func (o *Orchestrator) Run(ctx context.Context, target Target, s model.Scenario) (model.SessionResult, error) {
	start := time.Now()
	result := model.SessionResult{ArtifactsRequested: []string{}}

	var supplied []model.Artifact
	suppliedIDs := make(map[string]bool)

	for turn := 1; turn <= o.maxTurns; turn++ {
		sent := model.TurnRequest{Turn: turn, MaxTurns: o.maxTurns, ArtifactIDs: make([]string, 0, len(supplied))}
		for _, a := range supplied {
			sent.ArtifactIDs = append(sent.ArtifactIDs, a.ID)
		}
		res := o.client.Invoke(ctx, agentclient.Request{
			Endpoint:  target.Endpoint,
			APIKey:    target.APIKey,
			Scenario:  s,
			Turn:      turn,
			MaxTurns:  o.maxTurns,
			Artifacts: slices.Clone(supplied),
			Class:     retry.Extended,
		})

		rec := model.TurnRecord{
			Turn:              turn,
			Request:           sent,
			Response:          res.Response,
			RequestedArtifact: res.Response.RequestArtifact,
			LatencyMs:         res.LatencyMs,
		}
		result.Response = res.Response
		result.TurnsUsed = turn

		if res.Failed {
			result.Turns = append(result.Turns, rec)
			result.Outcome = model.SessionFailed
			result.LatencyMs = time.Since(start).Milliseconds()
			err := fmt.Errorf("%w on turn %d: %w", ErrAgentFailed, turn, res.Err)
			result.Error = err.Error()
			return result, err
		}

		if res.Response.IsComplete {
			result.Turns = append(result.Turns, rec)
			result.Outcome = model.SessionComplete
			result.LatencyMs = time.Since(start).Milliseconds()
			return result, nil
		}

		if id := res.Response.RequestArtifact; id != "" && !suppliedIDs[id] {
			if a, ok := s.Artifact(id); ok {
				supplied = append(supplied, a)
				suppliedIDs[id] = true
				result.ArtifactsRequested = append(result.ArtifactsRequested, id)
				rec.Supplied = true
			} else {
				o.logger.Debug("agent requested unknown artifact",
					"checkpoint_id", s.ID, "artifact", id, "turn", turn)
			}
		}
		result.Turns = append(result.Turns, rec)
	}

	result.Outcome = model.SessionExhausted
	result.LatencyMs = time.Since(start).Milliseconds()
	return result, nil
}
