package model

import "time"

// ScenarioResult is the outcome of evaluating one scenario for one agent.
type ScenarioResult struct {
	ScenarioID         string            `json:"checkpointId"`
	DealID             string            `json:"dealId"`
	Visibility         Visibility        `json:"visibility"`
	TaskType           TaskType          `json:"taskType"`
	Verdict            AggregatedVerdict `json:"verdict"`
	Response           CandidateResponse `json:"-"`
	LatencyMs          int64             `json:"latencyMs"`
	Failed             bool              `json:"failed"`
	Error              string            `json:"error,omitempty"`
	MultiTurn          bool              `json:"multiTurn,omitempty"`
	TurnsUsed          int               `json:"turnsUsed,omitempty"`
	ArtifactsRequested []string          `json:"artifactsRequested,omitempty"`
}

// GroupSummary aggregates the scenarios of one visibility group.
type GroupSummary struct {
	Count             int                   `json:"count"`
	DimensionAverages map[Dimension]float64 `json:"dimensionAverages"`
	TotalScore        float64               `json:"totalScore"`
	MaxScore          float64               `json:"maxScore"`
}

// Run is the persisted record of one agent evaluated against the suite.
// ID is nil until the run store assigns one.
type Run struct {
	ID                *int64                `json:"runId"`
	AgentID           string                `json:"agentId"`
	AgentName         string                `json:"agentName"`
	Endpoint          string                `json:"endpoint"`
	Mode              Mode                  `json:"mode"`
	MultiTurn         bool                  `json:"multiTurn"`
	DimensionAverages map[Dimension]float64 `json:"dimensionAverages"`
	TotalScore        float64               `json:"finalScore"`
	MaxScore          float64               `json:"maxScore"`
	Percentage        int                   `json:"percentage"`
	ScenarioCount     int                   `json:"scenarioCount"`
	DealCount         int                   `json:"dealCount"`
	AvgLatencyMs      int64                 `json:"avgLatencyMs"`
	FailedCount       int                   `json:"failedCount"`
	Public            *GroupSummary         `json:"public,omitempty"`
	Private           *GroupSummary         `json:"private,omitempty"`
	SuiteDigest       string                `json:"suiteDigest,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
}

// LeaderboardEntry is one row of the leaderboard: an agent's best run.
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	RunID      int64     `json:"runId"`
	AgentID    string    `json:"agentId"`
	AgentName  string    `json:"agentName"`
	Mode       Mode      `json:"mode"`
	TotalScore float64   `json:"finalScore"`
	MaxScore   float64   `json:"maxScore"`
	Percentage int       `json:"percentage"`
	CreatedAt  time.Time `json:"createdAt"`
}
