//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/registry"
	"github.com/ashita-ai/salesbench/internal/storage"
	"github.com/ashita-ai/salesbench/internal/testutil"
	"github.com/ashita-ai/salesbench/migrations"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func sampleRun(agentID string, total float64, pct int) (*model.Run, []model.ScenarioResult) {
	scores := map[model.Dimension]float64{model.DimRiskIdentification: 7, model.DimNextStepQuality: 6}
	run := &model.Run{
		AgentID:           agentID,
		AgentName:         agentID + " name",
		Endpoint:          "http://" + agentID + ".test/analyze",
		Mode:              model.ModeFull,
		DimensionAverages: scores,
		TotalScore:        total,
		MaxScore:          80,
		Percentage:        pct,
		ScenarioCount:     2,
		DealCount:         2,
		AvgLatencyMs:      150,
		Public:            &model.GroupSummary{Count: 1, DimensionAverages: scores, TotalScore: total / 2, MaxScore: 40},
		Private:           &model.GroupSummary{Count: 1, DimensionAverages: scores, TotalScore: total / 2, MaxScore: 40},
		SuiteDigest:       "blake3:abc",
	}
	results := []model.ScenarioResult{
		{
			ScenarioID: "p1", DealID: "acme", Visibility: model.VisibilityPublic, TaskType: model.TaskAnalysis,
			Verdict: model.AggregatedVerdict{
				Scores: scores, Total: 13, MaxScore: 40, Feedback: "[gpt] good",
				Comparison: &model.Qualitative{RisksIdentified: []string{"budget"}},
			},
			LatencyMs: 100, MultiTurn: true, TurnsUsed: 2, ArtifactsRequested: []string{"email-3"},
		},
		{
			ScenarioID: "x1", DealID: "globex", Visibility: model.VisibilityPrivate, TaskType: model.TaskAnalysis,
			Verdict: model.AggregatedVerdict{
				Scores: scores, Total: 13, MaxScore: 40, Feedback: "[gpt] secret",
				Comparison: &model.Qualitative{RisksMissed: []string{"champion left"}},
			},
			LatencyMs: 200, Failed: true, Error: "agent call timed out",
		},
	}
	return run, results
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	run, results := sampleRun("save-get", 26, 33)

	id, err := testDB.SaveRun(ctx, run, results)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, gotResults, err := testDB.GetRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.ID)
	assert.Equal(t, id, *got.ID)
	assert.Equal(t, "save-get", got.AgentID)
	assert.Equal(t, model.ModeFull, got.Mode)
	assert.Equal(t, 7.0, got.DimensionAverages[model.DimRiskIdentification])
	require.NotNil(t, got.Public)
	assert.Equal(t, 1, got.Public.Count)
	assert.Equal(t, "blake3:abc", got.SuiteDigest)

	require.Len(t, gotResults, 2)
	pub, priv := gotResults[0], gotResults[1]
	assert.Equal(t, "[gpt] good", pub.Verdict.Feedback)
	require.NotNil(t, pub.Verdict.Comparison)
	assert.Equal(t, []string{"budget"}, pub.Verdict.Comparison.RisksIdentified)
	assert.Equal(t, []string{"email-3"}, pub.ArtifactsRequested)
	assert.Equal(t, 2, pub.TurnsUsed)

	assert.Empty(t, priv.Verdict.Feedback, "private feedback must not be stored")
	assert.Nil(t, priv.Verdict.Comparison)
	assert.True(t, priv.Failed)
	assert.Equal(t, "agent call timed out", priv.Error)
}

func TestGetRunNotFound(t *testing.T) {
	_, _, err := testDB.GetRun(context.Background(), 999999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	for i := range 3 {
		run, results := sampleRun("list-runs", float64(10+i), 10+i)
		run.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		_, err := testDB.SaveRun(ctx, run, results)
		require.NoError(t, err)
	}

	runs, err := testDB.ListRuns(ctx, "list-runs", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 12.0, runs[0].TotalScore, "newest first")
}

func TestLeaderboardBestRunPerAgent(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		agent string
		total float64
		pct   int
	}{
		{"lb-alpha", 40, 50},
		{"lb-alpha", 60, 75},
		{"lb-beta", 64, 80},
		{"lb-gamma", 20, 25},
	} {
		run, results := sampleRun(tc.agent, tc.total, tc.pct)
		run.Mode = model.ModePrivate
		_, err := testDB.SaveRun(ctx, run, results)
		require.NoError(t, err)
	}

	entries, err := testDB.Leaderboard(ctx, model.ModePrivate, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "lb-beta", entries[0].AgentID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "lb-alpha", entries[1].AgentID)
	assert.Equal(t, 75, entries[1].Percentage, "best run wins")
	assert.Equal(t, "lb-gamma", entries[2].AgentID)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestAgentRegistry(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.GetAgent(ctx, "reg-missing")
	require.ErrorIs(t, err, registry.ErrNotFound)

	require.NoError(t, testDB.PutAgent(ctx, model.Agent{ID: "reg-a", Name: "A", Endpoint: "http://a.test/analyze", APIKey: "k1"}))
	require.NoError(t, testDB.PutAgent(ctx, model.Agent{ID: "reg-a", Name: "A2", Endpoint: "http://a.test/v2", APIKey: "k2"}))
	require.Error(t, testDB.PutAgent(ctx, model.Agent{ID: "reg-b", Endpoint: "not a url"}))

	got, err := testDB.GetAgent(ctx, "reg-a")
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Name)
	assert.Equal(t, "http://a.test/v2", got.Endpoint)
	assert.Equal(t, "k2", got.APIKey)

	agents, err := testDB.ListAgents(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, agents)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}
