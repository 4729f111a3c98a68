package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ashita-ai/salesbench/internal/llmjson"
	"github.com/ashita-ai/salesbench/internal/model"
)

var errNoScores = errors.New("judge: reply has no scores object")

type reply struct {
	Scores                   map[string]json.RawMessage `json:"scores"`
	Feedback                 string                     `json:"feedback"`
	RisksIdentified          []string                   `json:"risks_identified"`
	RisksMissed              []string                   `json:"risks_missed"`
	HelpfulRecommendations   []string                   `json:"helpful_recommendations"`
	UnhelpfulRecommendations []string                   `json:"unhelpful_recommendations"`
}

// ParseReply turns raw judge output into a verdict over dims. Scores are
// clamped to [0, 10]; a missing or non-numeric dimension scores 0. A reply
// without a JSON object or without a scores object is an error.
func ParseReply(judgeName, text string, dims []model.Dimension) (model.JudgeVerdict, error) {
	r, err := llmjson.Decode[reply](text)
	if err != nil {
		return model.JudgeVerdict{}, fmt.Errorf("judge: %s: %w", judgeName, err)
	}
	if r.Scores == nil {
		return model.JudgeVerdict{}, fmt.Errorf("%w (%s)", errNoScores, judgeName)
	}

	v := model.JudgeVerdict{
		Judge:    judgeName,
		Scores:   make(map[model.Dimension]float64, len(dims)),
		Feedback: strings.TrimSpace(r.Feedback),
		Qualitative: model.Qualitative{
			RisksIdentified:          r.RisksIdentified,
			RisksMissed:              r.RisksMissed,
			HelpfulRecommendations:   r.HelpfulRecommendations,
			UnhelpfulRecommendations: r.UnhelpfulRecommendations,
		},
	}
	for _, d := range dims {
		s := clampScore(scoreValue(r.Scores[string(d)]))
		v.Scores[d] = s
		v.Total += s
	}
	return v, nil
}

// failedVerdict is the all-zero verdict recorded for a judge that could not
// produce a usable reply.
func failedVerdict(judgeName string, dims []model.Dimension, err error) model.JudgeVerdict {
	v := model.JudgeVerdict{
		Judge:    judgeName,
		Scores:   make(map[model.Dimension]float64, len(dims)),
		Feedback: fmt.Sprintf("%s evaluation failed: %v", judgeName, err),
		Error:    err.Error(),
	}
	for _, d := range dims {
		v.Scores[d] = 0
	}
	return v
}

func scoreValue(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	var obj struct {
		Score json.RawMessage `json:"score"`
	}
	if json.Unmarshal(raw, &obj) == nil && len(obj.Score) > 0 {
		return scoreValue(obj.Score)
	}
	return 0
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(model.MaxDimensionScore, v))
}
