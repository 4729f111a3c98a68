package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
)

func TestParseMode(t *testing.T) {
	m, err := model.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, model.ModePublic, m)

	for _, s := range []string{"public", "private", "full"} {
		m, err := model.ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, model.Mode(s), m)
	}

	_, err = model.ParseMode("everything")
	assert.Error(t, err)
}

func TestModeIncludes(t *testing.T) {
	assert.True(t, model.ModePublic.Includes(model.VisibilityPublic))
	assert.False(t, model.ModePublic.Includes(model.VisibilityPrivate))
	assert.True(t, model.ModePrivate.Includes(model.VisibilityPrivate))
	assert.False(t, model.ModePrivate.Includes(model.VisibilityPublic))
	assert.True(t, model.ModeFull.Includes(model.VisibilityPublic))
	assert.True(t, model.ModeFull.Includes(model.VisibilityPrivate))
}

func TestDimensionsAndMaxScore(t *testing.T) {
	assert.Len(t, model.Dimensions(model.TaskAnalysis), 4)
	assert.Equal(t, 40.0, model.MaxScore(model.TaskAnalysis))
	assert.Equal(t, 30.0, model.MaxScore(model.TaskSummary))
	assert.Equal(t, model.Dimensions(model.TaskAnalysis), model.Dimensions("unknown"))

	// Callers must not be able to corrupt the shared table.
	dims := model.Dimensions(model.TaskAnalysis)
	dims[0] = "mutated"
	assert.Equal(t, model.DimRiskIdentification, model.Dimensions(model.TaskAnalysis)[0])
}

func TestScenarioDefaults(t *testing.T) {
	s := model.Scenario{
		ID: "cp-1",
		Artifacts: []model.Artifact{
			{ID: "email-1", Type: "email", Content: "hello"},
			{ID: "call-2", Type: "call_transcript", Content: "..."},
		},
	}
	assert.Equal(t, model.TaskAnalysis, s.EffectiveTaskType())
	assert.Equal(t, model.DefaultQuestion, s.EffectiveQuestion())
	assert.Equal(t, []string{"email-1", "call-2"}, s.ArtifactIDs())

	a, ok := s.Artifact("call-2")
	require.True(t, ok)
	assert.Equal(t, "call_transcript", a.Type)

	_, ok = s.Artifact("missing")
	assert.False(t, ok)
}
