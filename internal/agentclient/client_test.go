package agentclient_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(timeout time.Duration) func(retry.PayloadClass) retry.Policy {
	return func(retry.PayloadClass) retry.Policy {
		return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, AttemptTimeout: timeout}
	}
}

func testScenario() model.Scenario {
	return model.Scenario{
		ID:     "acme-cp1",
		DealID: "acme",
		Context: model.DealContext{
			Company:    "Acme Corp",
			Stage:      "negotiation",
			PainPoints: []string{"manual reporting"},
			Stakeholders: []model.Stakeholder{
				{Name: "Dana", Role: "CFO"},
			},
		},
		Artifacts: []model.Artifact{
			{ID: "email-3", Type: "email", Title: "Pricing pushback", Content: "Too expensive."},
		},
	}
}

func TestInvoke_Success(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `Here is my analysis:
{"risks":[{"description":"CFO unconvinced on price","severity":"HIGH"}],
 "nextSteps":[{"action":"Send ROI model","priority":1}],
 "confidence":0.8,"reasoning":"Pricing objection in last call"}`)
	}))
	defer srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(time.Second)))
	res := c.Invoke(t.Context(), agentclient.Request{
		Endpoint: srv.URL,
		APIKey:   "secret",
		Scenario: testScenario(),
	})

	require.False(t, res.Failed)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "acme-cp1", got["checkpoint_id"])
	assert.Equal(t, model.DefaultQuestion, got["question"])
	assert.Contains(t, got, "deal_context")
	assert.NotContains(t, got, "available_artifacts", "single-turn calls do not advertise artifacts")

	require.Len(t, res.Response.Risks, 1)
	assert.Equal(t, model.SeverityHigh, res.Response.Risks[0].Severity)
	assert.Equal(t, "Send ROI model", res.Response.NextSteps[0].Action)
	assert.InDelta(t, 0.8, res.Response.Confidence, 1e-9)
}

func TestInvoke_MultiTurnFields(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `{"risks":[],"next_steps":[],"is_complete":false,"request_artifact":"email-3"}`)
	}))
	defer srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(time.Second)))
	res := c.Invoke(t.Context(), agentclient.Request{
		Endpoint: srv.URL,
		Scenario: testScenario(),
		Turn:     1,
		MaxTurns: 5,
		Class:    retry.Extended,
	})

	require.False(t, res.Failed)
	assert.EqualValues(t, 1, got["turn"])
	assert.EqualValues(t, 5, got["max_turns"])
	refs, ok := got["available_artifacts"].([]any)
	require.True(t, ok)
	require.Len(t, refs, 1)
	ref := refs[0].(map[string]any)
	assert.Equal(t, "email-3", ref["id"])
	assert.NotContains(t, ref, "content")

	assert.False(t, res.Response.IsComplete)
	assert.Equal(t, "email-3", res.Response.RequestArtifact)
}

func TestInvoke_Non2xxRetriesThenFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(time.Second)))
	res := c.Invoke(t.Context(), agentclient.Request{Endpoint: srv.URL, Scenario: testScenario()})

	assert.True(t, res.Failed)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.Response.Reasoning, "HTTP 500")
}

func TestInvoke_TimeoutOnEveryAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(30*time.Millisecond)))
	res := c.Invoke(t.Context(), agentclient.Request{Endpoint: srv.URL, Scenario: testScenario()})

	require.True(t, res.Failed)
	require.Error(t, res.Err)
	assert.Equal(t, 0.0, res.Response.Confidence)
	require.Len(t, res.Response.Risks, 1)
	assert.Equal(t, model.SeverityHigh, res.Response.Risks[0].Severity)
	assert.Contains(t, res.Response.Reasoning, res.Err.Error())
	assert.Contains(t, res.Response.Reasoning, "timed out")
}

func TestInvoke_NoJSONIsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = fmt.Fprint(w, "I could not analyze this deal, sorry.")
	}))
	defer srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(time.Second)))
	res := c.Invoke(t.Context(), agentclient.Request{Endpoint: srv.URL, Scenario: testScenario()})

	assert.True(t, res.Failed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvoke_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := agentclient.New(testLogger(), agentclient.WithPolicy(fastPolicy(time.Second)))
	res := c.Invoke(t.Context(), agentclient.Request{Endpoint: url, Scenario: testScenario()})

	assert.True(t, res.Failed)
	assert.Equal(t, "Retry analysis once the agent endpoint is reachable", res.Response.NextSteps[0].Action)
}
