// Package scoring folds per-scenario verdicts into run-level results and
// decides whether a run is fit to persist.
package scoring

import (
	"math"
	"sync"

	"github.com/ashita-ai/salesbench/internal/model"
)

type groupAccum struct {
	count     int
	dimSums   map[model.Dimension]float64
	dimCounts map[model.Dimension]int
	total     float64
	max       float64
}

func newGroupAccum() *groupAccum {
	return &groupAccum{
		dimSums:   make(map[model.Dimension]float64),
		dimCounts: make(map[model.Dimension]int),
	}
}

func (g *groupAccum) summary() *model.GroupSummary {
	s := &model.GroupSummary{
		Count:             g.count,
		DimensionAverages: make(map[model.Dimension]float64, len(g.dimSums)),
		TotalScore:        round(g.total, 1),
		MaxScore:          g.max,
	}
	for d, sum := range g.dimSums {
		s.DimensionAverages[d] = round(sum/float64(g.dimCounts[d]), 2)
	}
	return s
}

// Summary is the run-level aggregate over every counted scenario.
type Summary struct {
	Public            *model.GroupSummary
	Private           *model.GroupSummary
	DimensionAverages map[model.Dimension]float64
	TotalScore        float64
	MaxScore          float64
	Percentage        int
	ScenarioCount     int
	DealCount         int
	FailedCount       int
	AvgLatencyMs      int64
}

// Apply copies the summary onto a run record.
func (s Summary) Apply(run *model.Run) {
	run.Public = s.Public
	run.Private = s.Private
	run.DimensionAverages = s.DimensionAverages
	run.TotalScore = s.TotalScore
	run.MaxScore = s.MaxScore
	run.Percentage = s.Percentage
	run.ScenarioCount = s.ScenarioCount
	run.DealCount = s.DealCount
	run.FailedCount = s.FailedCount
	run.AvgLatencyMs = s.AvgLatencyMs
}

// Aggregator accumulates scenario results. Safe for concurrent use; each
// scenario id is counted at most once.
type Aggregator struct {
	mu         sync.Mutex
	groups     map[model.Visibility]*groupAccum
	seen       map[string]struct{}
	deals      map[string]struct{}
	latencySum int64
	failed     int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		groups: make(map[model.Visibility]*groupAccum),
		seen:   make(map[string]struct{}),
		deals:  make(map[string]struct{}),
	}
}

// Add counts one completed scenario. It reports false if the scenario was
// already counted.
func (a *Aggregator) Add(r model.ScenarioResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[r.ScenarioID]; dup {
		return false
	}
	a.seen[r.ScenarioID] = struct{}{}
	if r.DealID != "" {
		a.deals[r.DealID] = struct{}{}
	}
	a.latencySum += r.LatencyMs
	if r.Failed {
		a.failed++
	}

	vis := r.Visibility
	if !vis.Valid() {
		vis = model.VisibilityPublic
	}
	g, ok := a.groups[vis]
	if !ok {
		g = newGroupAccum()
		a.groups[vis] = g
	}
	g.count++
	g.total += r.Verdict.Total
	g.max += r.Verdict.MaxScore
	for d, v := range r.Verdict.Scores {
		g.dimSums[d] += v
		g.dimCounts[d]++
	}
	return true
}

// Count returns the number of scenarios counted so far.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Summary computes the combined result. Scores and maxima are summed across
// groups; dimension averages are the count-weighted mean of the group
// averages.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		DimensionAverages: make(map[model.Dimension]float64),
		ScenarioCount:     len(a.seen),
		DealCount:         len(a.deals),
		FailedCount:       a.failed,
	}

	weighted := make(map[model.Dimension]float64)
	weights := make(map[model.Dimension]int)
	for _, vis := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		g, ok := a.groups[vis]
		if !ok {
			continue
		}
		gs := g.summary()
		if vis == model.VisibilityPublic {
			s.Public = gs
		} else {
			s.Private = gs
		}
		s.TotalScore += g.total
		s.MaxScore += g.max
		for d, sum := range g.dimSums {
			avg := sum / float64(g.dimCounts[d])
			weighted[d] += avg * float64(g.dimCounts[d])
			weights[d] += g.dimCounts[d]
		}
	}
	for d, w := range weighted {
		s.DimensionAverages[d] = round(w/float64(weights[d]), 2)
	}
	s.TotalScore = round(s.TotalScore, 1)
	s.Percentage = Percentage(s.TotalScore, s.MaxScore)
	if s.ScenarioCount > 0 {
		s.AvgLatencyMs = int64(math.Round(float64(a.latencySum) / float64(s.ScenarioCount)))
	}
	return s
}

// Percentage is round(score / max × 100), or 0 when max is 0.
func Percentage(score, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(score / max * 100))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
