// Package sqlitestore is a single-file run store for local CLI runs. It
// offers the same run, leaderboard and agent operations as the Postgres
// store.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/registry"
	"github.com/ashita-ai/salesbench/internal/storage"
)

//go:embed schema.sql
var schema string

// Store is a SQLite-backed run store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRun inserts a run and its scenario results in one transaction.
// Feedback and comparison lists of private scenarios are not stored.
func (s *Store) SaveRun(ctx context.Context, run *model.Run, results []model.ScenarioResult) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: begin save run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dims, err := marshal(run.DimensionAverages)
	if err != nil {
		return 0, err
	}
	pub, err := marshalNullable(run.Public)
	if err != nil {
		return 0, err
	}
	priv, err := marshalNullable(run.Private)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (agent_id, agent_name, endpoint, mode, multi_turn, dimension_averages,
		                   total_score, max_score, percentage, scenario_count, deal_count,
		                   avg_latency_ms, failed_count, public_summary, private_summary,
		                   suite_digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.AgentID, run.AgentName, run.Endpoint, string(run.Mode), run.MultiTurn, dims,
		run.TotalScore, run.MaxScore, run.Percentage, run.ScenarioCount, run.DealCount,
		run.AvgLatencyMs, run.FailedCount, pub, priv,
		run.SuiteDigest, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scenario_results (run_id, checkpoint_id, deal_id, visibility, task_type, scores,
		                               total_score, max_score, feedback, comparison, latency_ms,
		                               failed, error, multi_turn, turns_used, artifacts_requested)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prepare scenario insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		scores, err := marshal(r.Verdict.Scores)
		if err != nil {
			return 0, err
		}
		var feedback, comparison sql.NullString
		if r.Visibility == model.VisibilityPublic {
			feedback = sql.NullString{String: r.Verdict.Feedback, Valid: true}
			if comparison, err = marshalNullable(r.Verdict.Comparison); err != nil {
				return 0, err
			}
		}
		requested := r.ArtifactsRequested
		if requested == nil {
			requested = []string{}
		}
		artifacts, err := marshal(requested)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			id, r.ScenarioID, r.DealID, string(r.Visibility), string(r.TaskType), scores,
			r.Verdict.Total, r.Verdict.MaxScore, feedback, comparison, r.LatencyMs,
			r.Failed, r.Error, r.MultiTurn, r.TurnsUsed, artifacts,
		); err != nil {
			return 0, fmt.Errorf("sqlitestore: insert scenario result %s: %w", r.ScenarioID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlitestore: commit save run tx: %w", err)
	}
	s.logger.Debug("sqlitestore: run saved", "run_id", id, "agent_id", run.AgentID)
	return id, nil
}

const runColumns = `id, agent_id, agent_name, endpoint, mode, multi_turn, dimension_averages,
	total_score, max_score, percentage, scenario_count, deal_count, avg_latency_ms,
	failed_count, public_summary, private_summary, suite_digest, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.Run, error) {
	var (
		run       model.Run
		id        int64
		mode      string
		dims      string
		pub, priv sql.NullString
		created   int64
	)
	err := row.Scan(
		&id, &run.AgentID, &run.AgentName, &run.Endpoint, &mode, &run.MultiTurn, &dims,
		&run.TotalScore, &run.MaxScore, &run.Percentage, &run.ScenarioCount, &run.DealCount, &run.AvgLatencyMs,
		&run.FailedCount, &pub, &priv, &run.SuiteDigest, &created,
	)
	if err != nil {
		return model.Run{}, err
	}
	run.ID = &id
	run.Mode = model.Mode(mode)
	run.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(dims), &run.DimensionAverages); err != nil {
		return model.Run{}, fmt.Errorf("decode dimension averages: %w", err)
	}
	if run.Public, err = unmarshalNullable[model.GroupSummary](pub); err != nil {
		return model.Run{}, err
	}
	if run.Private, err = unmarshalNullable[model.GroupSummary](priv); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

// GetRun returns a run and its scenario results ordered by checkpoint id.
func (s *Store) GetRun(ctx context.Context, id int64) (model.Run, []model.ScenarioResult, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, nil, fmt.Errorf("sqlitestore: run %d: %w", id, storage.ErrNotFound)
		}
		return model.Run{}, nil, fmt.Errorf("sqlitestore: get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, deal_id, visibility, task_type, scores, total_score, max_score,
		        feedback, comparison, latency_ms, failed, error, multi_turn, turns_used, artifacts_requested
		 FROM scenario_results WHERE run_id = ? ORDER BY checkpoint_id`, id)
	if err != nil {
		return model.Run{}, nil, fmt.Errorf("sqlitestore: query scenario results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.ScenarioResult
	for rows.Next() {
		var (
			r                    model.ScenarioResult
			vis, taskType        string
			scores, artifacts    string
			feedback, comparison sql.NullString
		)
		if err := rows.Scan(
			&r.ScenarioID, &r.DealID, &vis, &taskType, &scores, &r.Verdict.Total, &r.Verdict.MaxScore,
			&feedback, &comparison, &r.LatencyMs, &r.Failed, &r.Error, &r.MultiTurn, &r.TurnsUsed, &artifacts,
		); err != nil {
			return model.Run{}, nil, fmt.Errorf("sqlitestore: scan scenario result: %w", err)
		}
		r.Visibility = model.Visibility(vis)
		r.TaskType = model.TaskType(taskType)
		r.Verdict.Feedback = feedback.String
		if err := json.Unmarshal([]byte(scores), &r.Verdict.Scores); err != nil {
			return model.Run{}, nil, fmt.Errorf("sqlitestore: decode scores: %w", err)
		}
		if err := json.Unmarshal([]byte(artifacts), &r.ArtifactsRequested); err != nil {
			return model.Run{}, nil, fmt.Errorf("sqlitestore: decode artifacts: %w", err)
		}
		if r.Verdict.Comparison, err = unmarshalNullable[model.Qualitative](comparison); err != nil {
			return model.Run{}, nil, fmt.Errorf("sqlitestore: decode comparison: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return model.Run{}, nil, fmt.Errorf("sqlitestore: iterate scenario results: %w", err)
	}
	return run, results, nil
}

// ListRuns returns an agent's most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, agentID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Leaderboard returns each agent's best run in mode, ranked by percentage
// then total score. Ties go to the earlier run.
func (s *Store) Leaderboard(ctx context.Context, mode model.Mode, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, agent_name, mode, total_score, max_score, percentage, created_at
		 FROM (
		     SELECT *, ROW_NUMBER() OVER (
		         PARTITION BY agent_id
		         ORDER BY percentage DESC, total_score DESC, created_at ASC
		     ) AS rn
		     FROM runs
		     WHERE mode = ?
		 )
		 WHERE rn = 1
		 ORDER BY percentage DESC, total_score DESC, created_at ASC
		 LIMIT ?`,
		string(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		var m string
		var created int64
		if err := rows.Scan(&e.RunID, &e.AgentID, &e.AgentName, &m, &e.TotalScore, &e.MaxScore, &e.Percentage, &created); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan leaderboard: %w", err)
		}
		e.Mode = model.Mode(m)
		e.CreatedAt = time.Unix(0, created).UTC()
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetAgent returns a registered agent.
func (s *Store) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	var a model.Agent
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, endpoint, api_key, created_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Endpoint, &a.APIKey, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("sqlitestore: agent %s: %w", id, registry.ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("sqlitestore: get agent: %w", err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	return a, nil
}

// PutAgent inserts an agent or updates its name, endpoint and key.
func (s *Store) PutAgent(ctx context.Context, a model.Agent) error {
	if err := registry.Validate(a); err != nil {
		return fmt.Errorf("sqlitestore: put agent: %w", err)
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, endpoint, api_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET name = excluded.name, endpoint = excluded.endpoint,
		     api_key = excluded.api_key, updated_at = excluded.updated_at`,
		a.ID, a.Name, a.Endpoint, a.APIKey, a.CreatedAt.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: put agent: %w", err)
	}
	return nil
}

// ListAgents returns every registered agent ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, endpoint, api_key, created_at FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		var created int64
		if err := rows.Scan(&a.ID, &a.Name, &a.Endpoint, &a.APIKey, &created); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan agent: %w", err)
		}
		a.CreatedAt = time.Unix(0, created).UTC()
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: encode: %w", err)
	}
	return string(data), nil
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalNullable[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}
