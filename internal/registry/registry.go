// Package registry resolves candidate agents by id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashita-ai/salesbench/internal/model"
)

// ErrNotFound is returned when no agent has the requested id.
var ErrNotFound = errors.New("registry: agent not found")

// Store persists agent records. storage.DB and Memory implement it.
type Store interface {
	GetAgent(ctx context.Context, id string) (model.Agent, error)
	PutAgent(ctx context.Context, agent model.Agent) error
	ListAgents(ctx context.Context) ([]model.Agent, error)
}

// Validate checks an agent record before it is stored.
func Validate(a model.Agent) error {
	if err := model.ValidateAgentID(a.ID); err != nil {
		return err
	}
	return model.ValidateEndpoint(a.Endpoint)
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	agents map[string]model.Agent
}

// NewMemory returns a Memory seeded with agents.
func NewMemory(agents ...model.Agent) *Memory {
	m := &Memory{agents: make(map[string]model.Agent, len(agents))}
	for _, a := range agents {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		m.agents[a.ID] = a
	}
	return m
}

func (m *Memory) GetAgent(_ context.Context, id string) (model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return model.Agent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// PutAgent inserts or replaces an agent, keeping the original CreatedAt.
func (m *Memory) PutAgent(_ context.Context, a model.Agent) error {
	if err := Validate(a); err != nil {
		return fmt.Errorf("registry: put agent: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.agents[a.ID]; ok {
		a.CreatedAt = prev.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.agents[a.ID] = a
	return nil
}

// ListAgents returns every agent ordered by id.
func (m *Memory) ListAgents(_ context.Context) ([]model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Agent) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
