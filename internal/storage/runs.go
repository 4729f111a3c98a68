package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/salesbench/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("storage: not found")

// SaveRun inserts a run and its scenario results in one transaction and
// returns the new run id. Feedback and comparison lists of private scenarios
// are not stored.
func (db *DB) SaveRun(ctx context.Context, run *model.Run, results []model.ScenarioResult) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.DimensionAverages == nil {
		run.DimensionAverages = map[model.Dimension]float64{}
	}

	var id int64
	err := db.inTx(ctx, saveRunReplay, func(tx pgx.Tx) error {
		var err error
		id, err = insertRun(ctx, tx, run)
		if err != nil {
			return err
		}
		return insertResults(ctx, tx, id, results)
	})
	if err != nil {
		return 0, err
	}
	db.logger.Debug("storage: run saved", "run_id", id, "agent_id", run.AgentID, "scenarios", len(results))
	return id, nil
}

func insertRun(ctx context.Context, tx pgx.Tx, run *model.Run) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO runs (agent_id, agent_name, endpoint, mode, multi_turn, dimension_averages,
		                   total_score, max_score, percentage, scenario_count, deal_count,
		                   avg_latency_ms, failed_count, public_summary, private_summary,
		                   suite_digest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		run.AgentID, run.AgentName, run.Endpoint, string(run.Mode), run.MultiTurn, run.DimensionAverages,
		run.TotalScore, run.MaxScore, run.Percentage, run.ScenarioCount, run.DealCount,
		run.AvgLatencyMs, run.FailedCount, run.Public, run.Private,
		run.SuiteDigest, run.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: insert run: %w", err)
	}
	return id, nil
}

func insertResults(ctx context.Context, tx pgx.Tx, runID int64, results []model.ScenarioResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		var feedback *string
		var comparison *model.Qualitative
		if r.Visibility == model.VisibilityPublic {
			feedback = &r.Verdict.Feedback
			comparison = r.Verdict.Comparison
		}
		requested := r.ArtifactsRequested
		if requested == nil {
			requested = []string{}
		}
		batch.Queue(
			`INSERT INTO scenario_results (run_id, checkpoint_id, deal_id, visibility, task_type, scores,
			                               total_score, max_score, feedback, comparison, latency_ms,
			                               failed, error, multi_turn, turns_used, artifacts_requested)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			runID, r.ScenarioID, r.DealID, string(r.Visibility), string(r.TaskType), r.Verdict.Scores,
			r.Verdict.Total, r.Verdict.MaxScore, feedback, comparison, r.LatencyMs,
			r.Failed, r.Error, r.MultiTurn, r.TurnsUsed, requested,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: insert scenario results: %w", err)
	}
	return nil
}

const runColumns = `id, agent_id, agent_name, endpoint, mode, multi_turn, dimension_averages,
	total_score, max_score, percentage, scenario_count, deal_count, avg_latency_ms,
	failed_count, public_summary, private_summary, suite_digest, created_at`

func scanRun(row pgx.Row) (model.Run, error) {
	var run model.Run
	var id int64
	var mode string
	err := row.Scan(
		&id, &run.AgentID, &run.AgentName, &run.Endpoint, &mode, &run.MultiTurn, &run.DimensionAverages,
		&run.TotalScore, &run.MaxScore, &run.Percentage, &run.ScenarioCount, &run.DealCount, &run.AvgLatencyMs,
		&run.FailedCount, &run.Public, &run.Private, &run.SuiteDigest, &run.CreatedAt,
	)
	if err != nil {
		return model.Run{}, err
	}
	run.ID = &id
	run.Mode = model.Mode(mode)
	return run, nil
}

// GetRun returns a run and its scenario results in suite order of insertion.
func (db *DB) GetRun(ctx context.Context, id int64) (model.Run, []model.ScenarioResult, error) {
	run, err := scanRun(db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, nil, fmt.Errorf("storage: run %d: %w", id, ErrNotFound)
		}
		return model.Run{}, nil, fmt.Errorf("storage: get run: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT checkpoint_id, deal_id, visibility, task_type, scores, total_score, max_score,
		        feedback, comparison, latency_ms, failed, error, multi_turn, turns_used, artifacts_requested
		 FROM scenario_results WHERE run_id = $1 ORDER BY checkpoint_id`, id)
	if err != nil {
		return model.Run{}, nil, fmt.Errorf("storage: query scenario results: %w", err)
	}
	defer rows.Close()

	var results []model.ScenarioResult
	for rows.Next() {
		var r model.ScenarioResult
		var vis, taskType string
		var feedback *string
		err := rows.Scan(
			&r.ScenarioID, &r.DealID, &vis, &taskType, &r.Verdict.Scores, &r.Verdict.Total, &r.Verdict.MaxScore,
			&feedback, &r.Verdict.Comparison, &r.LatencyMs, &r.Failed, &r.Error, &r.MultiTurn, &r.TurnsUsed,
			&r.ArtifactsRequested,
		)
		if err != nil {
			return model.Run{}, nil, fmt.Errorf("storage: scan scenario result: %w", err)
		}
		r.Visibility = model.Visibility(vis)
		r.TaskType = model.TaskType(taskType)
		if feedback != nil {
			r.Verdict.Feedback = *feedback
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return model.Run{}, nil, fmt.Errorf("storage: iterate scenario results: %w", err)
	}
	return run, results, nil
}

// ListRuns returns an agent's most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, agentID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE agent_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Leaderboard returns each agent's best run in mode, ranked by percentage
// then total score. Ties go to the earlier run.
func (db *DB) Leaderboard(ctx context.Context, mode model.Mode, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, agent_id, agent_name, mode, total_score, max_score, percentage, created_at
		 FROM (
		     SELECT DISTINCT ON (agent_id)
		            id, agent_id, agent_name, mode, total_score, max_score, percentage, created_at
		     FROM runs
		     WHERE mode = $1
		     ORDER BY agent_id, percentage DESC, total_score DESC, created_at ASC
		 ) best
		 ORDER BY percentage DESC, total_score DESC, created_at ASC
		 LIMIT $2`,
		string(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		var m string
		if err := rows.Scan(&e.RunID, &e.AgentID, &e.AgentName, &m, &e.TotalScore, &e.MaxScore, &e.Percentage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan leaderboard: %w", err)
		}
		e.Mode = model.Mode(m)
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
