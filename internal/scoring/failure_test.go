package scoring_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/salesbench/internal/scoring"
)

func TestFailurePolicy_Decide(t *testing.T) {
	p := scoring.FailurePolicy{Threshold: scoring.DefaultFailureThreshold}

	tests := []struct {
		attempted, failed int
		persist           bool
	}{
		{10, 0, true},
		{8, 2, true}, // exactly 0.25 is allowed
		{10, 3, false},
		{4, 4, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		d := p.Decide(tt.attempted, tt.failed)
		assert.Equal(t, tt.persist, d.Persist, "%d/%d", tt.failed, tt.attempted)
		if !d.Persist {
			assert.NotEmpty(t, d.Reason)
		}
	}
}

func TestFailurePolicy_ConfigurableThreshold(t *testing.T) {
	strict := scoring.FailurePolicy{Threshold: 0}
	assert.False(t, strict.Decide(100, 1).Persist)
	assert.True(t, strict.Decide(100, 0).Persist)
}

func TestFailureTracker(t *testing.T) {
	var tr scoring.FailureTracker
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(i%4 == 0)
		}()
	}
	wg.Wait()

	attempted, failed := tr.Counts()
	assert.Equal(t, 20, attempted)
	assert.Equal(t, 5, failed)

	d := tr.Decide(scoring.FailurePolicy{Threshold: 0.25})
	assert.True(t, d.Persist)
	assert.InDelta(t, 0.25, d.Rate, 1e-9)
}
