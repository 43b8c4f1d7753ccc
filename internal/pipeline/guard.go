package pipeline

import (
	"errors"
	"sync/atomic"
)

var ErrRunInFlight = errors.New("a run for this source is already in flight")

// Guard lets at most one run of a pipeline execute at a time. Overlapping
// triggers are refused, not queued.
type Guard struct {
	inFlight atomic.Bool
}

func (g *Guard) TryRun(fn func()) error {
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrRunInFlight
	}
	defer g.inFlight.Store(false)

	fn()
	return nil
}

func (g *Guard) Running() bool {
	return g.inFlight.Load()
}
