package refagent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/model"
)

// stubLLM returns a fixed completion and records the last prompt.
type stubLLM struct {
	text string
	err  error

	mu       sync.Mutex
	messages []llms.MessageContent
}

func (s *stubLLM) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.text}}}, nil
}

func (s *stubLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, opts...)
}

func (s *stubLLM) userPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) < 2 {
		return ""
	}
	return s.messages[1].Parts[0].(llms.TextContent).Text
}

func post(t *testing.T, h http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const dealBody = `{"checkpoint_id":"acme-1","deal_context":{"company":"Acme Corp","stage":"Discovery",
"last_interaction":"Demo call last week","pain_points":["Manual processes"],
"stakeholders":[{"name":"Jane","role":"champion"}],"history":"Initial outreach"}}`

func TestAnalyzeSnakeCaseReply(t *testing.T) {
	llm := &stubLLM{text: "Sure:\n```json\n" + `{"risks":[{"description":"Champion may leave","severity":"HIGH"}],
"nextSteps":[{"action":"Book exec sponsor call","priority":1,"rationale":"multithread"}],
"confidence":0.72,"reasoning":"Single threaded."}` + "\n```"}
	h := New(llm, "", slog.New(slog.DiscardHandler)).Handler()

	rec := post(t, h, dealBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Contains(t, got, "next_steps")
	assert.NotContains(t, got, "nextSteps")
	assert.NotContains(t, got, "is_complete")
	assert.InDelta(t, 0.72, got["confidence"], 1e-9)
	assert.Equal(t, "Single threaded.", got["reasoning"])

	risks := got["risks"].([]any)
	require.Len(t, risks, 1)
	assert.Equal(t, "high", risks[0].(map[string]any)["severity"])

	prompt := llm.userPrompt()
	assert.Contains(t, prompt, "## Deal: Acme Corp")
	assert.Contains(t, prompt, "- Jane (champion)")
	assert.Contains(t, prompt, "Question: "+model.DefaultQuestion)
}

func TestAnalyzeAcceptsCamelCase(t *testing.T) {
	llm := &stubLLM{text: `{"risks":[],"confidence":0.9,"reasoning":"ok"}`}
	h := New(llm, "", slog.New(slog.DiscardHandler)).Handler()
	rec := post(t, h, `{"checkpointId":"c1","dealContext":{"company":"Globex"},"question":"Who decides?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, llm.userPrompt(), "Question: Who decides?")
	assert.Contains(t, llm.userPrompt(), "Stage: Unknown")
}

func TestAnalyzeUnparseableOutputDefaults(t *testing.T) {
	h := New(&stubLLM{text: "I cannot help with that."}, "", slog.New(slog.DiscardHandler)).Handler()
	rec := post(t, h, dealBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var got reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, agentclient.DefaultConfidence, got.Confidence)
	assert.Equal(t, unparsedReason, got.Reasoning)
	assert.Empty(t, got.Risks)
	assert.NotNil(t, got.NextSteps)
}

func TestAnalyzeValidation(t *testing.T) {
	h := New(&stubLLM{text: "{}"}, "", slog.New(slog.DiscardHandler)).Handler()
	tests := []struct {
		name, body, want string
	}{
		{"missing checkpoint", `{"deal_context":{"company":"A"}}`, "checkpoint_id is required"},
		{"missing deal context", `{"checkpoint_id":"c1"}`, "deal_context is required"},
		{"not json", `checkpoint`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestAnalyzeModelFailure(t *testing.T) {
	h := New(&stubLLM{err: errors.New("upstream 503")}, "", slog.New(slog.DiscardHandler)).Handler()
	rec := post(t, h, dealBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAnalyzeAPIKey(t *testing.T) {
	h := New(&stubLLM{text: "{}"}, "secret", slog.New(slog.DiscardHandler)).Handler()
	assert.Equal(t, http.StatusUnauthorized, post(t, h, dealBody).Code)
	assert.Equal(t, http.StatusOK, post(t, h, dealBody, "Authorization", "Bearer secret").Code)
}

func TestAnalyzeMultiTurn(t *testing.T) {
	llm := &stubLLM{text: `{"risks":[],"confidence":0.4,"reasoning":"need the thread","isComplete":false,"requestArtifact":"email-3"}`}
	h := New(llm, "", slog.New(slog.DiscardHandler)).Handler()

	body := `{"checkpoint_id":"c1","deal_context":{"company":"A"},"turn":1,"max_turns":5,
"available_artifacts":[{"id":"email-3","type":"email","title":"Budget thread"}]}`
	rec := post(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.IsComplete)
	assert.False(t, *got.IsComplete)
	assert.Equal(t, "email-3", got.RequestArtifact)
	assert.Contains(t, llm.userPrompt(), "- email-3 (email) Budget thread")
	assert.Contains(t, llm.userPrompt(), "Turn 1 of 5.")
}

// The reference agent must satisfy the client the engine uses.
func TestRoundTripThroughAgentClient(t *testing.T) {
	llm := &stubLLM{text: `{"risks":[{"description":"Budget freeze","severity":"medium"}],"next_steps":[{"action":"Confirm budget","priority":1}],"confidence":0.6,"reasoning":"r"}`}
	srv := httptest.NewServer(New(llm, "k", slog.New(slog.DiscardHandler)).Handler())
	t.Cleanup(srv.Close)

	client := agentclient.New(slog.New(slog.DiscardHandler))
	res := client.Invoke(context.Background(), agentclient.Request{
		Endpoint: srv.URL + "/analyze",
		APIKey:   "k",
		Scenario: model.Scenario{ID: "acme-1", Context: model.DealContext{Company: "Acme"}},
	})
	require.False(t, res.Failed, "error: %v", res.Err)
	require.Len(t, res.Response.Risks, 1)
	assert.Equal(t, model.SeverityMedium, res.Response.Risks[0].Severity)
	assert.Equal(t, "Confirm budget", res.Response.NextSteps[0].Action)
	assert.InDelta(t, 0.6, res.Response.Confidence, 1e-9)
}
