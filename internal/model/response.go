package model

// Severity ranks a risk.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Risk is one risk raised by a candidate agent.
type Risk struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// NextStep is one recommended action. Priority 1 is most urgent.
type NextStep struct {
	Action    string `json:"action"`
	Priority  int    `json:"priority"`
	Rationale string `json:"rationale,omitempty"`
}

// CandidateResponse is the normalized answer of a candidate agent.
// Confidence is always within [0, 1].
type CandidateResponse struct {
	Risks      []Risk     `json:"risks"`
	NextSteps  []NextStep `json:"nextSteps"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`

	// Multi-turn control fields.
	IsComplete      bool   `json:"isComplete,omitempty"`
	RequestArtifact string `json:"requestArtifact,omitempty"`
}
