// Package scheduler runs units of work with a bounded number in flight.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/salesbench/internal/telemetry"
)

// Unit is one schedulable piece of work.
type Unit func(ctx context.Context) error

// Pool starts units in submission order with at most Limit running at once.
// A finished unit, successful or not, frees its slot for the next queued
// unit. Units are never retried here. The ceiling holds across every Run in
// progress on the same Pool, so one Pool can bound nested fan-outs.
type Pool struct {
	name  string
	limit int
	slots chan struct{}

	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a pool. limit < 1 is treated as 1. name labels the in-flight
// gauge.
func New(name string, limit int) *Pool {
	limit = max(limit, 1)
	return &Pool{name: name, limit: limit, slots: make(chan struct{}, limit)}
}

// Limit returns the concurrency ceiling.
func (p *Pool) Limit() int { return p.limit }

// InFlight returns the number of units currently running.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Peak returns the highest in-flight count observed since creation.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Run executes units and blocks until every one has finished. The returned
// slice is indexed like units; nil entries succeeded. A panicking unit is
// reported as an error. Once ctx is done, units that have not started are
// skipped with ctx.Err(). Run may be called concurrently.
func (p *Pool) Run(ctx context.Context, units []Unit) []error {
	errs := make([]error, len(units))
	register(p)
	defer unregister(p)

	var g errgroup.Group
	for i, u := range units {
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			for k := i; k < len(units); k++ {
				errs[k] = ctx.Err()
			}
			_ = g.Wait()
			return errs
		}
		g.Go(func() error {
			defer func() { <-p.slots }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			p.enter()
			defer p.inFlight.Add(-1)
			errs[i] = runUnit(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (p *Pool) enter() {
	n := p.inFlight.Add(1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}

func runUnit(ctx context.Context, u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: unit panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return u(ctx)
}

// Run is a one-shot helper for New("", limit).Run(ctx, units).
func Run(ctx context.Context, limit int, units []Unit) []error {
	return New("", limit).Run(ctx, units)
}

// Failed counts the non-nil errors.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

var (
	gaugeOnce sync.Once
	poolsMu   sync.Mutex
	pools     = map[*Pool]struct{}{}
)

// register adds p to the in-flight gauge for the duration of a Run. The
// gauge sums running pools by name.
func register(p *Pool) {
	gaugeOnce.Do(func() {
		_, _ = telemetry.Meter("salesbench/scheduler").Int64ObservableGauge(
			"salesbench.scheduler.inflight",
			otelmetric.WithDescription("Units currently running, by pool"),
			otelmetric.WithInt64Callback(observe),
		)
	})
	poolsMu.Lock()
	pools[p] = struct{}{}
	poolsMu.Unlock()
}

func unregister(p *Pool) {
	poolsMu.Lock()
	delete(pools, p)
	poolsMu.Unlock()
}

func observe(_ context.Context, o otelmetric.Int64Observer) error {
	poolsMu.Lock()
	defer poolsMu.Unlock()

	byName := map[string]int64{}
	for p := range pools {
		byName[p.name] += p.inFlight.Load()
	}
	for name, n := range byName {
		o.Observe(n, otelmetric.WithAttributes(attribute.String("pool", name)))
	}
	return nil
}
