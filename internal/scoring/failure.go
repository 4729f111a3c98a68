package scoring

import (
	"fmt"
	"sync"
)

// DefaultFailureThreshold is the failure rate above which a run is not
// persisted.
const DefaultFailureThreshold = 0.25

// FailurePolicy decides whether a run may be persisted.
type FailurePolicy struct {
	Threshold float64
}

// Decision is the outcome of applying the policy to a finished run.
type Decision struct {
	Attempted int     `json:"attempted"`
	Failed    int     `json:"failed"`
	Rate      float64 `json:"failureRate"`
	Persist   bool    `json:"persist"`
	Reason    string  `json:"reason,omitempty"`
}

// Decide rejects persistence when failed/attempted strictly exceeds the
// threshold, or when nothing was attempted.
func (p FailurePolicy) Decide(attempted, failed int) Decision {
	d := Decision{Attempted: attempted, Failed: failed}
	if attempted == 0 {
		d.Reason = "no scenarios evaluated"
		return d
	}
	d.Rate = float64(failed) / float64(attempted)
	if d.Rate > p.Threshold {
		d.Reason = fmt.Sprintf("failure rate %.2f (%d of %d scenarios) exceeds threshold %.2f",
			d.Rate, failed, attempted, p.Threshold)
		return d
	}
	d.Persist = true
	return d
}

// FailureTracker counts attempted and failed scenarios of one run.
// Safe for concurrent use.
type FailureTracker struct {
	mu        sync.Mutex
	attempted int
	failed    int
}

// Record counts one attempted scenario.
func (t *FailureTracker) Record(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempted++
	if failed {
		t.failed++
	}
}

// Counts returns the attempted and failed totals.
func (t *FailureTracker) Counts() (attempted, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempted, t.failed
}

// Decide applies p to the tracked counts.
func (t *FailureTracker) Decide(p FailurePolicy) Decision {
	attempted, failed := t.Counts()
	return p.Decide(attempted, failed)
}
