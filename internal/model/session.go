package model

// SessionOutcome is the terminal state of a multi-turn session.
type SessionOutcome string

const (
	SessionComplete  SessionOutcome = "complete"
	SessionExhausted SessionOutcome = "exhausted"
	SessionFailed    SessionOutcome = "failed"
)

// TurnRequest is what the agent was sent on one turn.
type TurnRequest struct {
	Turn     int `json:"turn"`
	MaxTurns int `json:"maxTurns"`
	// ArtifactIDs lists the supplementary artifacts included, in the order
	// they were first supplied.
	ArtifactIDs []string `json:"artifactIds"`
}

// TurnRecord captures one request/response exchange of a multi-turn session.
type TurnRecord struct {
	Turn              int               `json:"turn"`
	Request           TurnRequest       `json:"request"`
	Response          CandidateResponse `json:"response"`
	RequestedArtifact string            `json:"requestedArtifact,omitempty"`
	Supplied          bool              `json:"supplied"`
	LatencyMs         int64             `json:"latencyMs"`
}

// SessionResult is the output of a multi-turn session. Response is the final
// answer regardless of outcome.
type SessionResult struct {
	Response           CandidateResponse `json:"response"`
	TurnsUsed          int               `json:"turnsUsed"`
	ArtifactsRequested []string          `json:"artifactsRequested"`
	Turns              []TurnRecord      `json:"turns,omitempty"`
	Outcome            SessionOutcome    `json:"outcome"`
	Error              string            `json:"error,omitempty"`
	LatencyMs          int64             `json:"latencyMs"`
}
