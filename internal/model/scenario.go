// Package model defines the core domain types for salesbench.
//
// Scenarios are loaded once per process and never mutated. Results, verdicts
// and runs are produced by the evaluation engine and flow outward to the
// progress stream and the run store.
package model

import (
	"fmt"
	"slices"
)

// Visibility controls how much judge feedback is disclosed for a scenario.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Mode selects which scenario groups a run evaluates.
type Mode string

const (
	ModePublic  Mode = "public"
	ModePrivate Mode = "private"
	ModeFull    Mode = "full"
)

// ParseMode validates a run mode string. Empty means public.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModePublic, nil
	case ModePublic, ModePrivate, ModeFull:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q (must be public, private or full)", s)
	}
}

// Includes reports whether scenarios of visibility v belong to this mode.
func (m Mode) Includes(v Visibility) bool {
	switch m {
	case ModeFull:
		return true
	case ModePrivate:
		return v == VisibilityPrivate
	default:
		return v == VisibilityPublic
	}
}

// TaskType selects the prompt family and dimension set used to judge a scenario.
type TaskType string

const (
	TaskAnalysis TaskType = "analysis"
	TaskSummary  TaskType = "summary"
)

// Dimension is a named scoring axis valued 0-10.
type Dimension string

const (
	DimRiskIdentification   Dimension = "risk_identification"
	DimNextStepQuality      Dimension = "next_step_quality"
	DimPrioritization       Dimension = "prioritization"
	DimOutcomeAlignment     Dimension = "outcome_alignment"
	DimInformationSynthesis Dimension = "information_synthesis"
	DimStakeholderMapping   Dimension = "stakeholder_mapping"
	DimAccuracy             Dimension = "accuracy"
)

// MaxDimensionScore is the upper bound of every dimension.
const MaxDimensionScore = 10.0

var dimensionsByTask = map[TaskType][]Dimension{
	TaskAnalysis: {DimRiskIdentification, DimNextStepQuality, DimPrioritization, DimOutcomeAlignment},
	TaskSummary:  {DimInformationSynthesis, DimStakeholderMapping, DimAccuracy},
}

// Dimensions returns the fixed dimension list for a task type.
// Unknown task types fall back to the analysis dimensions.
func Dimensions(t TaskType) []Dimension {
	if dims, ok := dimensionsByTask[t]; ok {
		return slices.Clone(dims)
	}
	return slices.Clone(dimensionsByTask[TaskAnalysis])
}

// MaxScore returns the per-scenario maximum for a task type.
func MaxScore(t TaskType) float64 {
	return MaxDimensionScore * float64(len(Dimensions(t)))
}

// Stakeholder is a person involved in a deal.
type Stakeholder struct {
	Name      string `json:"name" yaml:"name"`
	Role      string `json:"role" yaml:"role"`
	Sentiment string `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
}

// DealContext is the information handed to a candidate agent.
type DealContext struct {
	Company         string        `json:"company" yaml:"company"`
	Stage           string        `json:"stage" yaml:"stage"`
	Amount          float64       `json:"amount,omitempty" yaml:"amount,omitempty"`
	LastInteraction string        `json:"last_interaction,omitempty" yaml:"last_interaction,omitempty"`
	PainPoints      []string      `json:"pain_points,omitempty" yaml:"pain_points,omitempty"`
	Stakeholders    []Stakeholder `json:"stakeholders,omitempty" yaml:"stakeholders,omitempty"`
	History         string        `json:"history,omitempty" yaml:"history,omitempty"`
	Notes           string        `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// GroundTruth is what actually happened after the checkpoint. It is shown to
// judges only, never to candidate agents.
type GroundTruth struct {
	Outcome         string   `json:"outcome" yaml:"outcome"`
	ActualRisks     []string `json:"actual_risks,omitempty" yaml:"actual_risks,omitempty"`
	ActualNextSteps []string `json:"actual_next_steps,omitempty" yaml:"actual_next_steps,omitempty"`
	Summary         string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	KeyStakeholders []string `json:"key_stakeholders,omitempty" yaml:"key_stakeholders,omitempty"`
}

// Artifact is a supplementary evidence item an agent may request in a
// multi-turn session (email thread, call transcript, CRM note).
type Artifact struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type" yaml:"type"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Content string `json:"content" yaml:"content"`
}

// Scenario is one checkpoint in a deal. Immutable after load.
type Scenario struct {
	ID          string      `json:"id" yaml:"id"`
	DealID      string      `json:"deal_id" yaml:"-"`
	DealName    string      `json:"deal_name,omitempty" yaml:"-"`
	TaskType    TaskType    `json:"task_type,omitempty" yaml:"task_type,omitempty"`
	Question    string      `json:"question,omitempty" yaml:"question,omitempty"`
	Context     DealContext `json:"context" yaml:"context"`
	GroundTruth GroundTruth `json:"ground_truth" yaml:"ground_truth"`
	Artifacts   []Artifact  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Visibility  Visibility  `json:"visibility" yaml:"-"`
}

// DefaultQuestion is asked when a scenario does not set one.
const DefaultQuestion = "What are the top risks and recommended next steps?"

// EffectiveTaskType returns the scenario's task type, defaulting to analysis.
func (s Scenario) EffectiveTaskType() TaskType {
	if s.TaskType == "" {
		return TaskAnalysis
	}
	return s.TaskType
}

// EffectiveQuestion returns the question posed to the agent.
func (s Scenario) EffectiveQuestion() string {
	if s.Question == "" {
		return DefaultQuestion
	}
	return s.Question
}

// Artifact looks up an artifact by id.
func (s Scenario) Artifact(id string) (Artifact, bool) {
	for _, a := range s.Artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return Artifact{}, false
}

// ArtifactIDs returns the identifiers of the available evidence items.
func (s Scenario) ArtifactIDs() []string {
	ids := make([]string, 0, len(s.Artifacts))
	for _, a := range s.Artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}
