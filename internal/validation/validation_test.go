package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
)

func TestStructValid(t *testing.T) {
	req := model.EvaluationRequest{
		Agent: model.AgentSpec{Endpoint: "http://localhost:5000/analyze"},
		Mode:  "full",
	}
	require.NoError(t, Struct(req))
}

func TestStructReportsEveryField(t *testing.T) {
	req := model.BenchmarkRequest{
		Agents: []model.AgentSpec{{Endpoint: "not a url"}},
		Mode:   "everything",
	}
	err := Struct(req)
	require.Error(t, err)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Contains(t, err.Error(), "agents[0].endpoint must be a valid URL")
	assert.Contains(t, err.Error(), "mode must be one of [public private full]")
}

func TestStructJudgeConfig(t *testing.T) {
	err := Struct(model.JudgeConfig{Name: "x", Provider: "ollama", Model: "m", APIKeyEnv: "K"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider must be one of")
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "agent.api_key", fieldPath("EvaluationRequest.Agent.APIKey"))
	assert.Equal(t, "requests_per_minute", fieldPath("JudgeConfig.RequestsPerMinute"))
}
