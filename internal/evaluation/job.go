package evaluation

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/registry"
)

// Errors returned by Prepare for requests that cannot start. IsInvalid
// reports whether an error is one of them.
var (
	ErrNoScenarios     = errors.New("evaluation: no scenarios for mode")
	ErrMissingEndpoint = errors.New("evaluation: agent endpoint is required")
	ErrNoAgents        = errors.New("evaluation: at least one agent is required")
	ErrInvalidAgent    = errors.New("evaluation: invalid agent")
	ErrInvalidMode     = errors.New("evaluation: invalid mode")
)

// IsInvalid reports whether err rejects the request itself, as opposed to an
// infrastructure failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrNoScenarios) ||
		errors.Is(err, ErrMissingEndpoint) ||
		errors.Is(err, ErrNoAgents) ||
		errors.Is(err, ErrInvalidAgent) ||
		errors.Is(err, ErrInvalidMode)
}

// Target is a resolved candidate agent.
type Target struct {
	AgentID  string
	Name     string
	Endpoint string
	APIKey   string
}

// Job is a validated evaluation request, ready to run.
type Job struct {
	// Key identifies the job on the progress stream.
	Key       string
	Agents    []Target
	Mode      model.Mode
	MultiTurn bool
	Scenarios []model.Scenario
}

// Prepare validates a request and resolves its agents. Every error it
// returns is reported before any scenario runs.
func (e *Engine) Prepare(ctx context.Context, specs []model.AgentSpec, mode string, multiTurn bool) (*Job, error) {
	if len(specs) == 0 {
		return nil, ErrNoAgents
	}
	m, err := model.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMode, err)
	}
	scenarios := e.suite.Filter(m)
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoScenarios, m)
	}

	agents := make([]Target, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		t, err := e.resolve(ctx, spec)
		if err != nil {
			return nil, err
		}
		if seen[t.AgentID] {
			return nil, fmt.Errorf("%w: duplicate agent %q", ErrInvalidAgent, t.AgentID)
		}
		seen[t.AgentID] = true
		agents = append(agents, t)
	}

	return &Job{
		Key:       uuid.NewString(),
		Agents:    agents,
		Mode:      m,
		MultiTurn: multiTurn,
		Scenarios: scenarios,
	}, nil
}

// resolve fills in an agent's endpoint from the registry when only its id is
// given. An id given together with an endpoint registers the agent the first
// time; after that the endpoint must match the registered one, so a request
// cannot rebind an id that already has runs on the leaderboard.
func (e *Engine) resolve(ctx context.Context, spec model.AgentSpec) (Target, error) {
	t := Target{AgentID: spec.AgentID, Name: spec.Name, Endpoint: spec.Endpoint, APIKey: spec.APIKey}
	if t.AgentID != "" {
		if err := model.ValidateAgentID(t.AgentID); err != nil {
			return Target{}, fmt.Errorf("%w: %w", ErrInvalidAgent, err)
		}
	}

	if t.Endpoint == "" {
		if t.AgentID == "" || e.registry == nil {
			return Target{}, ErrMissingEndpoint
		}
		a, found, err := e.lookup(ctx, t.AgentID)
		if err != nil {
			return Target{}, err
		}
		if !found {
			return Target{}, fmt.Errorf("%w: agent %q is not registered", ErrMissingEndpoint, t.AgentID)
		}
		t.Endpoint = a.Endpoint
		t.fillFrom(a)
	} else {
		if err := model.ValidateEndpoint(t.Endpoint); err != nil {
			return Target{}, fmt.Errorf("%w: %w", ErrInvalidAgent, err)
		}
		explicit := t.AgentID != ""
		if !explicit {
			u, err := url.Parse(t.Endpoint)
			if err != nil {
				return Target{}, fmt.Errorf("%w: %w", ErrInvalidAgent, err)
			}
			t.AgentID = u.Host
		}
		if err := e.bind(ctx, &t, explicit); err != nil {
			return Target{}, err
		}
	}

	if t.Name == "" {
		t.Name = t.AgentID
	}
	return t, nil
}

func (e *Engine) lookup(ctx context.Context, id string) (model.Agent, bool, error) {
	a, err := e.registry.GetAgent(ctx, id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return model.Agent{}, false, nil
	case err != nil:
		return model.Agent{}, false, fmt.Errorf("evaluation: resolve agent %s: %w", id, err)
	}
	return a, true, nil
}

// bind checks t against the registry entry for its id. A registered id keeps
// its endpoint; a different endpoint is rejected. Unknown explicit ids are
// registered; ids derived from the endpoint host are never stored.
func (e *Engine) bind(ctx context.Context, t *Target, register bool) error {
	if e.registry == nil {
		return nil
	}
	a, found, err := e.lookup(ctx, t.AgentID)
	if err != nil {
		return err
	}
	if found {
		if a.Endpoint != t.Endpoint {
			return fmt.Errorf("%w: agent %q is registered with a different endpoint", ErrInvalidAgent, t.AgentID)
		}
		t.fillFrom(a)
		return nil
	}
	if !register {
		return nil
	}
	err = e.registry.PutAgent(ctx, model.Agent{ID: t.AgentID, Name: t.Name, Endpoint: t.Endpoint, APIKey: t.APIKey})
	if err != nil {
		e.logger.Warn("register agent failed", "agent_id", t.AgentID, "error", err)
	}
	return nil
}

// fillFrom copies the stored key and name where the request left them empty.
func (t *Target) fillFrom(a model.Agent) {
	if t.APIKey == "" {
		t.APIKey = a.APIKey
	}
	if t.Name == "" {
		t.Name = a.Name
	}
}
