package sqlitestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/registry"
	"github.com/ashita-ai/salesbench/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(agentID string, mode model.Mode, total float64, pct int) (*model.Run, []model.ScenarioResult) {
	scores := map[model.Dimension]float64{model.DimRiskIdentification: 7}
	run := &model.Run{
		AgentID:           agentID,
		AgentName:         agentID,
		Mode:              mode,
		DimensionAverages: scores,
		TotalScore:        total,
		MaxScore:          80,
		Percentage:        pct,
		ScenarioCount:     2,
		Public:            &model.GroupSummary{Count: 1, TotalScore: total, MaxScore: 40},
	}
	results := []model.ScenarioResult{
		{
			ScenarioID: "p1", DealID: "acme", Visibility: model.VisibilityPublic, TaskType: model.TaskAnalysis,
			Verdict: model.AggregatedVerdict{
				Scores: scores, Total: 7, MaxScore: 40, Feedback: "[gpt] ok",
				Comparison: &model.Qualitative{RisksIdentified: []string{"budget"}},
			},
			LatencyMs: 90, MultiTurn: true, TurnsUsed: 2, ArtifactsRequested: []string{"email-3"},
		},
		{
			ScenarioID: "x1", DealID: "globex", Visibility: model.VisibilityPrivate, TaskType: model.TaskAnalysis,
			Verdict:   model.AggregatedVerdict{Scores: scores, Total: 7, MaxScore: 40, Feedback: "[gpt] hidden"},
			LatencyMs: 110, Failed: true, Error: "timeout",
		},
	}
	return run, results
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run, results := sampleRun("agent-a", model.ModeFull, 14, 18)

	id, err := s.SaveRun(ctx, run, results)
	require.NoError(t, err)

	got, gotResults, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.ID)
	assert.Equal(t, id, *got.ID)
	assert.Equal(t, model.ModeFull, got.Mode)
	assert.Equal(t, 14.0, got.TotalScore)
	assert.Equal(t, 7.0, got.DimensionAverages[model.DimRiskIdentification])
	require.NotNil(t, got.Public)
	assert.Nil(t, got.Private)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, 0)

	require.Len(t, gotResults, 2)
	assert.Equal(t, "[gpt] ok", gotResults[0].Verdict.Feedback)
	require.NotNil(t, gotResults[0].Verdict.Comparison)
	assert.Equal(t, []string{"email-3"}, gotResults[0].ArtifactsRequested)
	assert.True(t, gotResults[0].MultiTurn)

	assert.Empty(t, gotResults[1].Verdict.Feedback)
	assert.Nil(t, gotResults[1].Verdict.Comparison)
	assert.True(t, gotResults[1].Failed)
	assert.Equal(t, []string{}, gotResults[1].ArtifactsRequested)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.GetRun(context.Background(), 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLeaderboard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, tc := range []struct {
		agent string
		mode  model.Mode
		total float64
		pct   int
	}{
		{"alpha", model.ModePublic, 40, 50},
		{"alpha", model.ModePublic, 60, 75},
		{"beta", model.ModePublic, 64, 80},
		{"gamma", model.ModePrivate, 80, 100},
	} {
		run, results := sampleRun(tc.agent, tc.mode, tc.total, tc.pct)
		_, err := s.SaveRun(ctx, run, results)
		require.NoError(t, err)
	}

	entries, err := s.Leaderboard(ctx, model.ModePublic, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "beta", entries[0].AgentID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "alpha", entries[1].AgentID)
	assert.Equal(t, 75, entries[1].Percentage)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var ids []int64
	for _, total := range []float64{10, 20, 30} {
		run, results := sampleRun("lister", model.ModePublic, total, int(total))
		id, err := s.SaveRun(ctx, run, results)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	other, results := sampleRun("someone-else", model.ModePublic, 5, 5)
	_, err := s.SaveRun(ctx, other, results)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "lister", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.NotNil(t, runs[0].ID)
	assert.Equal(t, ids[2], *runs[0].ID)
	assert.Equal(t, 30.0, runs[0].TotalScore)
	assert.Equal(t, ids[1], *runs[1].ID)

	none, err := s.ListRuns(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAgents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetAgent(ctx, "nobody")
	require.ErrorIs(t, err, registry.ErrNotFound)

	require.NoError(t, s.PutAgent(ctx, model.Agent{ID: "a", Name: "A", Endpoint: "http://a.test"}))
	require.NoError(t, s.PutAgent(ctx, model.Agent{ID: "a", Name: "A2", Endpoint: "http://a.test/v2", APIKey: "k"}))
	require.Error(t, s.PutAgent(ctx, model.Agent{ID: "b", Endpoint: "nope"}))

	got, err := s.GetAgent(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Name)
	assert.Equal(t, "k", got.APIKey)

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(context.Background(), path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	run, results := sampleRun("file", model.ModePublic, 1, 1)
	_, err = s.SaveRun(context.Background(), run, results)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	entries, err := s.Leaderboard(context.Background(), model.ModePublic, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

var (
	_ registry.Store = (*Store)(nil)
	_ registry.Store = (*storage.DB)(nil)
)
