package agentclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ashita-ai/salesbench/internal/model"
)

// Placeholders substituted for missing text fields.
const (
	PlaceholderRisk      = "Unspecified risk"
	PlaceholderAction    = "Unspecified action"
	PlaceholderReasoning = "No reasoning provided"

	DefaultConfidence = 0.5
)

// rawResponse accepts both camelCase and snake_case spellings of every
// multi-word field.
type rawResponse struct {
	Risks                []json.RawMessage `json:"risks"`
	NextSteps            []json.RawMessage `json:"nextSteps"`
	NextStepsSnake       []json.RawMessage `json:"next_steps"`
	Confidence           json.RawMessage   `json:"confidence"`
	Reasoning            string            `json:"reasoning"`
	IsComplete           *bool             `json:"isComplete"`
	IsCompleteSnake      *bool             `json:"is_complete"`
	RequestArtifact      string            `json:"requestArtifact"`
	RequestArtifactSnake string            `json:"request_artifact"`
}

type rawRisk struct {
	Description string `json:"description"`
	Risk        string `json:"risk"`
	Severity    string `json:"severity"`
}

type rawStep struct {
	Action    string          `json:"action"`
	Step      string          `json:"step"`
	Priority  json.RawMessage `json:"priority"`
	Rationale string          `json:"rationale"`
}

// Normalize decodes one JSON object produced by a candidate agent into the
// canonical response shape. It fails only when obj is not a JSON object.
func Normalize(obj []byte) (model.CandidateResponse, error) {
	var raw rawResponse
	if err := json.Unmarshal(obj, &raw); err != nil {
		return model.CandidateResponse{}, fmt.Errorf("agentclient: decode response: %w", err)
	}

	out := model.CandidateResponse{
		Risks:      make([]model.Risk, 0, len(raw.Risks)),
		Confidence: normalizeConfidence(raw.Confidence),
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}
	if out.Reasoning == "" {
		out.Reasoning = PlaceholderReasoning
	}

	for _, r := range raw.Risks {
		out.Risks = append(out.Risks, normalizeRisk(r))
	}

	steps := raw.NextSteps
	if len(steps) == 0 {
		steps = raw.NextStepsSnake
	}
	out.NextSteps = make([]model.NextStep, 0, len(steps))
	for i, s := range steps {
		out.NextSteps = append(out.NextSteps, normalizeStep(s, i+1))
	}

	switch {
	case raw.IsComplete != nil:
		out.IsComplete = *raw.IsComplete
	case raw.IsCompleteSnake != nil:
		out.IsComplete = *raw.IsCompleteSnake
	}
	out.RequestArtifact = strings.TrimSpace(raw.RequestArtifact)
	if out.RequestArtifact == "" {
		out.RequestArtifact = strings.TrimSpace(raw.RequestArtifactSnake)
	}
	return out, nil
}

func normalizeRisk(msg json.RawMessage) model.Risk {
	risk := model.Risk{Severity: model.SeverityMedium}

	var text string
	if json.Unmarshal(msg, &text) == nil {
		risk.Description = strings.TrimSpace(text)
	} else {
		var r rawRisk
		_ = json.Unmarshal(msg, &r)
		risk.Description = strings.TrimSpace(r.Description)
		if risk.Description == "" {
			risk.Description = strings.TrimSpace(r.Risk)
		}
		risk.Severity = normalizeSeverity(r.Severity)
	}
	if risk.Description == "" {
		risk.Description = PlaceholderRisk
	}
	return risk
}

func normalizeSeverity(s string) model.Severity {
	switch sev := model.Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		return sev
	default:
		return model.SeverityMedium
	}
}

func normalizeStep(msg json.RawMessage, position int) model.NextStep {
	step := model.NextStep{Priority: position}

	var text string
	if json.Unmarshal(msg, &text) == nil {
		step.Action = strings.TrimSpace(text)
	} else {
		var s rawStep
		_ = json.Unmarshal(msg, &s)
		step.Action = strings.TrimSpace(s.Action)
		if step.Action == "" {
			step.Action = strings.TrimSpace(s.Step)
		}
		step.Rationale = strings.TrimSpace(s.Rationale)
		if p, ok := parseNumber(s.Priority); ok && p >= 1 {
			step.Priority = int(p)
		}
	}
	if step.Action == "" {
		step.Action = PlaceholderAction
	}
	return step
}

func normalizeConfidence(msg json.RawMessage) float64 {
	c, ok := parseNumber(msg)
	if !ok {
		return DefaultConfidence
	}
	return clamp(c, 0, 1)
}

// parseNumber reads a JSON number or a numeric string.
func parseNumber(msg json.RawMessage) (float64, bool) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return f, !math.IsNaN(f)
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Fallback is the response substituted when every attempt to reach an agent
// failed. It scores poorly by construction.
func Fallback(err error) model.CandidateResponse {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return model.CandidateResponse{
		Risks: []model.Risk{{
			Description: "Unable to analyze deal: agent request failed",
			Severity:    model.SeverityHigh,
		}},
		NextSteps: []model.NextStep{{
			Action:   "Retry analysis once the agent endpoint is reachable",
			Priority: 1,
		}},
		Confidence: 0,
		Reasoning:  "Agent invocation failed: " + msg,
	}
}
