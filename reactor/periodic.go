// Package reactor implements the Periodic Action gate (C7) and the
// Reactor cooperative scheduler (C8, spec.md §4.5/§4.6): the thread
// that drives the Block Coordinator and Chain Sync Service forward by
// repeatedly calling their PollOnce methods.
package reactor

import (
	"time"

	"github.com/fetchai/ledger-sub006/clock"
)

// PeriodicAction is a single-threaded cooperative gate: it holds a
// period and a next-fire time, and invokes a bound callback no more
// often than once per period (spec.md §4.5). Not thread-safe by
// contract — callers must only ever Poll it from one goroutine.
type PeriodicAction struct {
	clock    clock.Clock
	period   time.Duration
	nextFire time.Time
	callback func()
}

// NewPeriodicAction returns a gate with the given period, next armed
// to fire on its very first Poll.
func NewPeriodicAction(c clock.Clock, period time.Duration, callback func()) *PeriodicAction {
	return &PeriodicAction{
		clock:    c,
		period:   period,
		nextFire: c.Now(),
		callback: callback,
	}
}

// Poll invokes the callback and rearms if the period has elapsed,
// reporting whether it fired (spec.md §4.5).
func (p *PeriodicAction) Poll() bool {
	now := p.clock.Now()
	if now.Before(p.nextFire) {
		return false
	}
	if p.callback != nil {
		p.callback()
	}
	p.nextFire = now.Add(p.period)
	return true
}
