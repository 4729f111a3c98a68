package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/report"
)

func entries() []model.LeaderboardEntry {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return []model.LeaderboardEntry{
		{Rank: 1, RunID: 12, AgentID: "closer", AgentName: "Closer v2", Mode: model.ModePublic, TotalScore: 131.5, MaxScore: 160, Percentage: 82, CreatedAt: at},
		{Rank: 2, RunID: 9, AgentID: "baseline", AgentName: "baseline", Mode: model.ModePublic, TotalScore: 88, MaxScore: 160, Percentage: 55, CreatedAt: at},
	}
}

func TestLeaderboardTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Leaderboard(entries(), report.FormatTable, &buf))
	out := buf.String()
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "Closer v2 (closer)")
	assert.Contains(t, out, "82%")
	assert.Contains(t, out, "2026-03-14")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[3]), "2"))
}

func TestLeaderboardMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Leaderboard(entries(), report.FormatMarkdown, &buf))
	assert.Contains(t, buf.String(), "| 2 | baseline | 88.0 | 160 | 55% | 9 | 2026-03-14 |")
}

func TestLeaderboardJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Leaderboard(entries(), report.FormatJSON, &buf))
	var got []model.LeaderboardEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, entries(), got)
}

func TestRuns(t *testing.T) {
	id := int64(7)
	summaries := []progress.RunSummary{
		{RunID: &id, AgentID: "a", FinalScore: 80, MaxScore: 160, Percentage: 50, AvgLatencyMs: 1200, ScenarioCount: 4, Persisted: true},
		{AgentID: "b", FinalScore: 10, MaxScore: 160, Percentage: 6, ScenarioCount: 4, FailedCount: 3, Reason: "failure rate 75% exceeds threshold 25%"},
	}

	var buf bytes.Buffer
	require.NoError(t, report.Runs(summaries, report.FormatTable, &buf))
	assert.Contains(t, buf.String(), "run 7")
	assert.Contains(t, buf.String(), "3/4")
	assert.Contains(t, buf.String(), "no (failure rate 75% exceeds threshold 25%)")

	buf.Reset()
	require.NoError(t, report.Runs(summaries, report.FormatMarkdown, &buf))
	assert.Contains(t, buf.String(), "| a | 80.0 | 160 | 50% | 1200ms | 0/4 | run 7 |")
}

func TestDimensionsOrdered(t *testing.T) {
	var buf bytes.Buffer
	s := progress.RunSummary{DimensionAverages: map[model.Dimension]float64{
		model.DimPrioritization:     6.5,
		model.DimRiskIdentification: 7.25,
	}}
	require.NoError(t, report.Dimensions(s, &buf))
	out := buf.String()
	assert.Less(t, strings.Index(out, "risk_identification"), strings.Index(out, "prioritization"))
	assert.Contains(t, out, "7.2")
}

func TestValidFormat(t *testing.T) {
	assert.True(t, report.ValidFormat("markdown"))
	assert.False(t, report.ValidFormat("csv"))
}

func TestScenariosOmitsContent(t *testing.T) {
	scenarios := []model.Scenario{
		{
			ID: "acme_cp1", DealID: "acme", DealName: "Acme Corp", Visibility: model.VisibilityPublic,
			Context:   model.DealContext{Stage: "Discovery"},
			Artifacts: []model.Artifact{{ID: "t1", Type: "transcript", Content: "secret call notes"}},
		},
		{ID: "zen_cp2", DealID: "zen", Visibility: model.VisibilityPrivate, TaskType: model.TaskSummary},
	}

	var table bytes.Buffer
	require.NoError(t, report.Scenarios(scenarios, report.FormatTable, &table))
	out := table.String()
	assert.Contains(t, out, "Acme Corp (acme)")
	assert.Contains(t, out, "summary")
	assert.NotContains(t, out, "secret call notes")

	var js bytes.Buffer
	require.NoError(t, report.Scenarios(scenarios, report.FormatJSON, &js))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "analysis", rows[0]["taskType"])
	assert.EqualValues(t, 1, rows[0]["artifacts"])
	assert.NotContains(t, js.String(), "Discovery")
}

func TestHistory(t *testing.T) {
	id := int64(7)
	runs := []model.Run{
		{ID: &id, AgentID: "closer", Mode: model.ModeFull, MultiTurn: true, TotalScore: 90.5, MaxScore: 160,
			Percentage: 57, ScenarioCount: 4, FailedCount: 1, CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
		{AgentID: "closer", Mode: model.ModePublic, CreatedAt: time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)},
	}
	var buf bytes.Buffer
	require.NoError(t, report.History(runs, report.FormatTable, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "full/multi-turn")
	assert.Contains(t, lines[1], "1/4")
	assert.Contains(t, lines[1], "2026-03-14 09:30")
	assert.True(t, strings.HasPrefix(lines[2], "-"))
}

func TestAgentsHidesKeys(t *testing.T) {
	agents := []model.Agent{{ID: "closer", Name: "Closer", Endpoint: "http://closer.test/analyze", APIKey: "s3cret"}}
	for _, f := range []string{report.FormatTable, report.FormatMarkdown, report.FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, report.Agents(agents, f, &buf))
		assert.Contains(t, buf.String(), "http://closer.test/analyze", f)
		assert.NotContains(t, buf.String(), "s3cret", f)
	}
}
