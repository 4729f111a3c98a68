// Package progress streams evaluation progress to callers as Server-Sent
// Events.
//
// Per-unit events are written in completion order, each carrying a strictly
// increasing completed count. The terminal event (complete or error) is
// written after every unit event.
package progress

import (
	"encoding/json"

	"github.com/ashita-ai/salesbench/internal/model"
)

// EventType discriminates stream events.
type EventType string

const (
	EventCheckpoint    EventType = "checkpoint"
	EventTask          EventType = "task"
	EventAgentComplete EventType = "agent_complete"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// Event is any stream event.
type Event interface {
	Kind() EventType
}

// Progress reports completed units out of the total scheduled.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// UnitEvent reports one finished scenario. Type is checkpoint for
// single-turn units and task for multi-turn units.
type UnitEvent struct {
	Type               EventType                   `json:"type"`
	RunKey             string                      `json:"runKey,omitempty"`
	AgentID            string                      `json:"agentId,omitempty"`
	CheckpointID       string                      `json:"checkpointId,omitempty"`
	TaskID             string                      `json:"taskId,omitempty"`
	DealID             string                      `json:"dealId,omitempty"`
	Visibility         model.Visibility            `json:"visibility"`
	Scores             map[model.Dimension]float64 `json:"scores"`
	TotalScore         float64                     `json:"totalScore"`
	MaxScore           float64                     `json:"maxScore"`
	LatencyMs          int64                       `json:"latencyMs"`
	Failed             bool                        `json:"failed"`
	Feedback           string                      `json:"feedback,omitempty"`
	Comparison         *model.Qualitative          `json:"comparison,omitempty"`
	TurnsUsed          int                         `json:"turnsUsed,omitempty"`
	ArtifactsRequested []string                    `json:"artifactsRequested,omitempty"`
	Progress           Progress                    `json:"progress"`
}

func (e UnitEvent) Kind() EventType { return e.Type }

// NewUnitEvent builds the event for a scenario result. Feedback and the
// comparison lists are disclosed only for public scenarios.
func NewUnitEvent(runKey, agentID string, r model.ScenarioResult) UnitEvent {
	ev := UnitEvent{
		Type:       EventCheckpoint,
		RunKey:     runKey,
		AgentID:    agentID,
		DealID:     r.DealID,
		Visibility: r.Visibility,
		Scores:     r.Verdict.Scores,
		TotalScore: r.Verdict.Total,
		MaxScore:   r.Verdict.MaxScore,
		LatencyMs:  r.LatencyMs,
		Failed:     r.Failed,
	}
	if r.MultiTurn {
		ev.Type = EventTask
		ev.TaskID = r.ScenarioID
		ev.TurnsUsed = r.TurnsUsed
		ev.ArtifactsRequested = r.ArtifactsRequested
	} else {
		ev.CheckpointID = r.ScenarioID
	}
	if r.Visibility == model.VisibilityPublic {
		ev.Feedback = r.Verdict.Feedback
		ev.Comparison = r.Verdict.Comparison
	}
	return ev
}

// RunSummary is the outcome of one agent's run as reported on the stream.
type RunSummary struct {
	RunID             *int64                      `json:"runId"`
	AgentID           string                      `json:"agentId,omitempty"`
	AgentName         string                      `json:"agentName,omitempty"`
	FinalScore        float64                     `json:"finalScore"`
	MaxScore          float64                     `json:"maxScore"`
	Percentage        int                         `json:"percentage"`
	AvgLatencyMs      int64                       `json:"avgLatencyMs"`
	ScenarioCount     int                         `json:"scenarioCount"`
	FailedCount       int                         `json:"failedCount"`
	FailureRate       float64                     `json:"failureRate"`
	Persisted         bool                        `json:"persisted"`
	Reason            string                      `json:"reason,omitempty"`
	DimensionAverages map[model.Dimension]float64 `json:"dimensionAverages,omitempty"`
}

// CompleteEvent terminates a single-agent evaluation stream.
type CompleteEvent struct {
	Type   EventType `json:"type"`
	RunKey string    `json:"runKey,omitempty"`
	RunSummary
}

func (e CompleteEvent) Kind() EventType { return EventComplete }

// NewCompleteEvent wraps a run summary as the terminal event.
func NewCompleteEvent(runKey string, s RunSummary) CompleteEvent {
	return CompleteEvent{Type: EventComplete, RunKey: runKey, RunSummary: s}
}

// AgentCompleteEvent reports one finished agent within a benchmark.
type AgentCompleteEvent struct {
	Type   EventType `json:"type"`
	RunKey string    `json:"runKey,omitempty"`
	RunSummary
	Progress Progress `json:"progress"`
}

func (e AgentCompleteEvent) Kind() EventType { return EventAgentComplete }

// BenchmarkCompleteEvent terminates a benchmark stream. Its type is
// complete, like the single-agent terminal event.
type BenchmarkCompleteEvent struct {
	Type   EventType    `json:"type"`
	RunKey string       `json:"runKey,omitempty"`
	Agents []RunSummary `json:"agents"`
}

func (e BenchmarkCompleteEvent) Kind() EventType { return EventComplete }

// NewBenchmarkCompleteEvent builds the benchmark terminal event.
func NewBenchmarkCompleteEvent(runKey string, agents []RunSummary) BenchmarkCompleteEvent {
	if agents == nil {
		agents = []RunSummary{}
	}
	return BenchmarkCompleteEvent{Type: EventComplete, RunKey: runKey, Agents: agents}
}

// ErrorEvent terminates a stream that could not complete.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	RunKey  string    `json:"runKey,omitempty"`
	Message string    `json:"message"`
}

func (e ErrorEvent) Kind() EventType { return EventError }

// NewErrorEvent builds an error event.
func NewErrorEvent(runKey, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, RunKey: runKey, Message: message}
}

// Format renders ev as one SSE data frame.
func Format(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}
