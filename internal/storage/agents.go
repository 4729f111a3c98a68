package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/registry"
)

const agentColumns = `id, name, endpoint, api_key, created_at`

func scanAgent(row pgx.CollectableRow) (model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Endpoint, &a.APIKey, &a.CreatedAt)
	return a, err
}

// GetAgent looks up one registered agent. Unknown ids wrap registry.ErrNotFound.
func (db *DB) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	rows, _ := db.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := pgx.CollectExactlyOneRow(rows, scanAgent)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, registry.ErrNotFound)
	case err != nil:
		return model.Agent{}, fmt.Errorf("storage: get agent %s: %w", id, err)
	}
	return a, nil
}

// PutAgent upserts by id. created_at is kept from the first registration.
func (db *DB) PutAgent(ctx context.Context, a model.Agent) error {
	if err := registry.Validate(a); err != nil {
		return fmt.Errorf("storage: put agent: %w", err)
	}
	updated := time.Now().UTC()
	created := a.CreatedAt
	if created.IsZero() {
		created = updated
	}
	const upsert = `
INSERT INTO agents (id, name, endpoint, api_key, created_at, updated_at)
VALUES (@id, @name, @endpoint, @api_key, @created_at, @updated_at)
ON CONFLICT (id) DO UPDATE SET
	name       = EXCLUDED.name,
	endpoint   = EXCLUDED.endpoint,
	api_key    = EXCLUDED.api_key,
	updated_at = EXCLUDED.updated_at`
	if _, err := db.pool.Exec(ctx, upsert, pgx.NamedArgs{
		"id":         a.ID,
		"name":       a.Name,
		"endpoint":   a.Endpoint,
		"api_key":    a.APIKey,
		"created_at": created,
		"updated_at": updated,
	}); err != nil {
		return fmt.Errorf("storage: put agent %s: %w", a.ID, err)
	}
	return nil
}

// ListAgents returns the registry sorted by id.
func (db *DB) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, _ := db.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	agents, err := pgx.CollectRows(rows, scanAgent)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	return agents, nil
}
