// Package refagent is a reference candidate agent. It implements the agent
// contract on top of any langchaingo chat model and is what
// `salesbench refagent` serves.
package refagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/llmjson"
	"github.com/ashita-ai/salesbench/internal/model"
)

const (
	maxRequestBytes = 1 << 20
	temperature     = 0.3
	unparsedReason  = "Unable to parse response"
)

const systemPrompt = `You are an expert sales analyst. Analyze the deal and return JSON:
{
  "risks": [{"description": "...", "severity": "high|medium|low"}],
  "nextSteps": [{"action": "...", "priority": 1, "rationale": "..."}],
  "confidence": 0.0-1.0,
  "reasoning": "2-3 sentences"
}
Be specific to the deal context. Reference actual stakeholders and dynamics.`

const multiTurnPrompt = `
This is a multi-turn session. If one of the listed artifacts would change your
assessment, add "requestArtifact": "<artifact id>" and "isComplete": false.
Otherwise set "isComplete": true.`

// request accepts both spellings of the multi-word fields.
type request struct {
	CheckpointID       string                    `json:"checkpoint_id"`
	CheckpointIDCamel  string                    `json:"checkpointId"`
	DealContext        *model.DealContext        `json:"deal_context"`
	DealContextCamel   *model.DealContext        `json:"dealContext"`
	Question           string                    `json:"question"`
	Turn               int                       `json:"turn"`
	MaxTurns           int                       `json:"max_turns"`
	AvailableArtifacts []agentclient.ArtifactRef `json:"available_artifacts"`
	Artifacts          []model.Artifact          `json:"artifacts"`
}

func (r request) checkpointID() string {
	if r.CheckpointID != "" {
		return r.CheckpointID
	}
	return r.CheckpointIDCamel
}

func (r request) dealContext() *model.DealContext {
	if r.DealContext != nil {
		return r.DealContext
	}
	return r.DealContextCamel
}

// reply is the agent's answer, snake_case on the wire.
type reply struct {
	Risks           []model.Risk     `json:"risks"`
	NextSteps       []model.NextStep `json:"next_steps"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	IsComplete      *bool            `json:"is_complete,omitempty"`
	RequestArtifact string           `json:"request_artifact,omitempty"`
}

// Agent answers analysis requests with an LLM.
type Agent struct {
	llm    llms.Model
	apiKey string
	logger *slog.Logger
}

// New creates an Agent. A non-empty apiKey makes the agent require
// "Authorization: Bearer <apiKey>".
func New(llm llms.Model, apiKey string, logger *slog.Logger) *Agent {
	return &Agent{llm: llm, apiKey: apiKey, logger: logger}
}

// Handler returns the agent's routes: POST /analyze and GET /health.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", a.handleAnalyze)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (a *Agent) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if a.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+a.apiKey {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid api key"))
		return
	}

	var req request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.checkpointID() == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("checkpoint_id is required"))
		return
	}
	if req.dealContext() == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("deal_context is required"))
		return
	}

	out, err := a.analyze(r.Context(), req)
	if err != nil {
		a.logger.Error("refagent: analyze failed", "checkpoint_id", req.checkpointID(), "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody("model call failed"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// analyze asks the model about one checkpoint. Only a failed model call is
// an error; unparseable output yields the default reply.
func (a *Agent) analyze(ctx context.Context, req request) (reply, error) {
	sys := systemPrompt
	if req.Turn > 0 {
		sys += multiTurnPrompt
	}
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, sys),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(req)),
	}
	resp, err := a.llm.GenerateContent(ctx, msgs, llms.WithTemperature(temperature))
	if err != nil {
		return reply{}, fmt.Errorf("refagent: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return reply{}, errors.New("refagent: model returned no choices")
	}
	return parseReply(resp.Choices[0].Content, req.Turn > 0), nil
}

func parseReply(text string, multiTurn bool) reply {
	out := reply{Risks: []model.Risk{}, NextSteps: []model.NextStep{}, Confidence: agentclient.DefaultConfidence, Reasoning: unparsedReason}

	obj, err := llmjson.ExtractObject(text)
	if err != nil {
		return out
	}
	parsed, err := agentclient.Normalize([]byte(obj))
	if err != nil {
		return out
	}
	out.Risks = parsed.Risks
	out.NextSteps = parsed.NextSteps
	out.Confidence = parsed.Confidence
	if parsed.Reasoning != agentclient.PlaceholderReasoning {
		out.Reasoning = parsed.Reasoning
	}
	if multiTurn {
		complete := parsed.IsComplete || parsed.RequestArtifact == ""
		out.IsComplete = &complete
		if !complete {
			out.RequestArtifact = parsed.RequestArtifact
		}
	}
	return out
}

// buildPrompt renders the deal for the model.
func buildPrompt(req request) string {
	c := req.dealContext()
	var b strings.Builder

	fmt.Fprintf(&b, "## Deal: %s\n", orDefault(c.Company, "Unknown"))
	fmt.Fprintf(&b, "Stage: %s\n", orDefault(c.Stage, "Unknown"))
	fmt.Fprintf(&b, "Last Interaction: %s\n\n", orDefault(c.LastInteraction, "N/A"))

	b.WriteString("Pain Points:\n")
	for _, p := range c.PainPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("\nStakeholders:\n")
	for _, s := range c.Stakeholders {
		fmt.Fprintf(&b, "- %s (%s)\n", orDefault(s.Name, "?"), orDefault(s.Role, "?"))
	}
	fmt.Fprintf(&b, "\nHistory: %s\n", orDefault(c.History, "N/A"))

	if len(req.AvailableArtifacts) > 0 {
		b.WriteString("\nAvailable artifacts:\n")
		for _, ar := range req.AvailableArtifacts {
			fmt.Fprintf(&b, "- %s (%s) %s\n", ar.ID, ar.Type, ar.Title)
		}
	}
	for _, ar := range req.Artifacts {
		fmt.Fprintf(&b, "\n### Artifact %s (%s)\n%s\n", ar.ID, ar.Type, ar.Content)
	}
	if req.Turn > 0 {
		fmt.Fprintf(&b, "\nTurn %d of %d.\n", req.Turn, req.MaxTurns)
	}

	fmt.Fprintf(&b, "\n---\nQuestion: %s\n\n", orDefault(req.Question, model.DefaultQuestion))
	b.WriteString("Analyze this deal and provide your assessment as JSON.")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
