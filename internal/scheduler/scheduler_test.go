package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/scheduler"
)

func TestPool_RunsAllUnits(t *testing.T) {
	var count atomic.Int32
	units := make([]scheduler.Unit, 10)
	for i := range units {
		units[i] = func(context.Context) error {
			count.Add(1)
			return nil
		}
	}
	errs := scheduler.Run(context.Background(), 3, units)
	assert.Equal(t, 0, scheduler.Failed(errs))
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_NeverExceedsCeiling(t *testing.T) {
	const ceiling, total = 3, 12

	var (
		current atomic.Int32
		maxSeen atomic.Int32
	)
	units := make([]scheduler.Unit, total)
	for i := range units {
		units[i] = func(context.Context) error {
			n := current.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}
	}

	p := scheduler.New("test", ceiling)
	errs := p.Run(context.Background(), units)

	require.Len(t, errs, total)
	assert.Equal(t, 0, scheduler.Failed(errs))
	assert.LessOrEqual(t, int(maxSeen.Load()), ceiling)
	assert.LessOrEqual(t, p.Peak(), ceiling)
	assert.Equal(t, ceiling, p.Peak(), "ceiling should be reached with more units than slots")
	assert.Equal(t, 0, p.InFlight())
}

func TestPool_FailureFreesSlot(t *testing.T) {
	boom := errors.New("boom")
	units := []scheduler.Unit{
		func(context.Context) error { return boom },
		func(context.Context) error { return nil },
		func(context.Context) error { panic("kaboom") },
		func(context.Context) error { return nil },
	}
	errs := scheduler.Run(context.Background(), 1, units)

	require.Len(t, errs, 4)
	assert.ErrorIs(t, errs[0], boom)
	assert.NoError(t, errs[1])
	require.Error(t, errs[2])
	assert.Contains(t, errs[2].Error(), "kaboom")
	assert.NoError(t, errs[3])
	assert.Equal(t, 2, scheduler.Failed(errs))
}

func TestPool_StartsInSubmissionOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	units := make([]scheduler.Unit, 5)
	for i := range units {
		units[i] = func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}
	}
	scheduler.Run(context.Background(), 1, units)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_CancelledContextSkipsPendingUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Int32
	units := []scheduler.Unit{
		func(context.Context) error {
			ran.Add(1)
			cancel()
			return nil
		},
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return nil },
	}
	errs := scheduler.Run(ctx, 1, units)

	assert.Equal(t, int32(1), ran.Load())
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], context.Canceled)
	assert.ErrorIs(t, errs[2], context.Canceled)
}

func TestNew_ClampsLimit(t *testing.T) {
	assert.Equal(t, 1, scheduler.New("x", 0).Limit())
	assert.Equal(t, 1, scheduler.New("x", -4).Limit())
}

func TestPool_CeilingSharedAcrossRuns(t *testing.T) {
	const ceiling = 2
	pool := scheduler.New("shared", ceiling)

	var (
		current atomic.Int32
		maxSeen atomic.Int32
	)
	batch := func() []scheduler.Unit {
		units := make([]scheduler.Unit, 4)
		for i := range units {
			units[i] = func(context.Context) error {
				n := current.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			}
		}
		return units
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs := pool.Run(context.Background(), batch())
			assert.Equal(t, 0, scheduler.Failed(errs))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(maxSeen.Load()), ceiling)
	assert.LessOrEqual(t, pool.Peak(), ceiling)
	assert.Equal(t, 0, pool.InFlight())
}
