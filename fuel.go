package minja

import (
	"math"
	"sync/atomic"
)

// fuelTracker bounds the number of statements a single render may execute.
// Multi-turn chat conversation templates tend to loop over every message
// in the history, so a runaway template (an infinite {% for %} caused by a
// bad recursive include, say) burns through fuel fast; tracking a low-fuel
// threshold lets the renderer warn once before the render is aborted
// outright, instead of the caller only finding out after the fact.
type fuelTracker struct {
	initial   uint64
	remaining atomic.Int64
	warned    atomic.Bool
}

func newFuelTracker(fuel uint64) *fuelTracker {
	if fuel > math.MaxInt64 {
		fuel = math.MaxInt64
	}
	tracker := &fuelTracker{initial: fuel}
	tracker.remaining.Store(int64(fuel))
	return tracker
}

func (f *fuelTracker) consume(amount int64) error {
	if amount == 0 {
		return nil
	}
	remaining := f.remaining.Add(-amount)
	if remaining <= 0 {
		return NewError(ErrOutOfFuel, "out of fuel")
	}
	return nil
}

func (f *fuelTracker) remainingFuel() uint64 {
	remaining := f.remaining.Load()
	if remaining <= 0 {
		return 0
	}
	return uint64(remaining)
}

func (f *fuelTracker) consumedFuel() uint64 {
	remaining := f.remainingFuel()
	if remaining >= f.initial {
		return 0
	}
	return f.initial - remaining
}

// lowFuel reports whether remaining fuel has dropped under 10% of the
// initial budget, returning true only the first time the threshold is
// crossed so callers can log a single warning instead of one per statement.
func (f *fuelTracker) lowFuel() bool {
	if f.initial == 0 {
		return false
	}
	if f.remainingFuel()*10 > f.initial {
		return false
	}
	return !f.warned.Swap(true)
}
