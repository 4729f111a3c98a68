package judge

import (
	"math"
	"strings"

	"github.com/ashita-ai/salesbench/internal/model"
)

// Aggregate combines one verdict per configured judge. Each dimension is the
// mean over all verdicts (failed judges contribute zeros), rounded to one
// decimal; the total is the sum of the aggregated dimensions. The comparison
// lists are merged only for public scenarios.
func Aggregate(verdicts []model.JudgeVerdict, dims []model.Dimension, vis model.Visibility) model.AggregatedVerdict {
	out := model.AggregatedVerdict{
		Scores:   make(map[model.Dimension]float64, len(dims)),
		MaxScore: model.MaxDimensionScore * float64(len(dims)),
		Judges:   verdicts,
	}

	n := float64(len(verdicts))
	for _, d := range dims {
		var sum float64
		for _, v := range verdicts {
			sum += v.Scores[d]
		}
		var avg float64
		if n > 0 {
			avg = Round1(sum / n)
		}
		out.Scores[d] = avg
		out.Total += avg
	}
	out.Total = Round1(out.Total)

	var parts []string
	for _, v := range verdicts {
		if v.Feedback == "" {
			continue
		}
		parts = append(parts, "["+v.Judge+"] "+v.Feedback)
	}
	out.Feedback = strings.Join(parts, " | ")

	if vis == model.VisibilityPublic {
		merged := mergeQualitative(verdicts)
		out.Comparison = &merged
	}
	return out
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mergeQualitative(verdicts []model.JudgeVerdict) model.Qualitative {
	var identified, missed, helpful, unhelpful [][]string
	for _, v := range verdicts {
		identified = append(identified, v.Qualitative.RisksIdentified)
		missed = append(missed, v.Qualitative.RisksMissed)
		helpful = append(helpful, v.Qualitative.HelpfulRecommendations)
		unhelpful = append(unhelpful, v.Qualitative.UnhelpfulRecommendations)
	}
	return model.Qualitative{
		RisksIdentified:          dedupe(identified...),
		RisksMissed:              dedupe(missed...),
		HelpfulRecommendations:   dedupe(helpful...),
		UnhelpfulRecommendations: dedupe(unhelpful...),
	}
}

// dedupe unions lists in first-seen order, comparing trimmed entries
// case-insensitively. The result is never nil.
func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			key := strings.ToLower(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
