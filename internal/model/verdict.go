package model

// Qualitative holds the comparison lists judges produce for public scenarios.
type Qualitative struct {
	RisksIdentified          []string `json:"risksIdentified"`
	RisksMissed              []string `json:"risksMissed"`
	HelpfulRecommendations   []string `json:"helpfulRecommendations"`
	UnhelpfulRecommendations []string `json:"unhelpfulRecommendations"`
}

// Empty reports whether every list is empty.
func (q Qualitative) Empty() bool {
	return len(q.RisksIdentified) == 0 && len(q.RisksMissed) == 0 &&
		len(q.HelpfulRecommendations) == 0 && len(q.UnhelpfulRecommendations) == 0
}

// JudgeVerdict is one judge's assessment of a candidate response.
// A failed judge carries all-zero scores and Error set.
type JudgeVerdict struct {
	Judge       string                `json:"judge"`
	Scores      map[Dimension]float64 `json:"scores"`
	Total       float64               `json:"total"`
	Feedback    string                `json:"feedback"`
	Qualitative Qualitative           `json:"-"`
	Error       string                `json:"error,omitempty"`
	LatencyMs   int64                 `json:"latencyMs"`
}

// Failed reports whether the judge call failed.
func (v JudgeVerdict) Failed() bool { return v.Error != "" }

// AggregatedVerdict combines every judge verdict for one scenario.
// Comparison is nil for private scenarios.
type AggregatedVerdict struct {
	Scores     map[Dimension]float64 `json:"scores"`
	Total      float64               `json:"totalScore"`
	MaxScore   float64               `json:"maxScore"`
	Feedback   string                `json:"feedback"`
	Comparison *Qualitative          `json:"comparison,omitempty"`
	Judges     []JudgeVerdict        `json:"judges,omitempty"`
}
