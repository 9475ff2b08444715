package reactor

import (
	"sync/atomic"
	"time"

	"github.com/fetchai/ledger-sub006/log"
)

// Runnable is a cooperatively-polled state machine — the Block
// Coordinator and Chain Sync Service both satisfy it. PollOnce
// performs one bounded unit of work and reports whether it made
// progress (spec.md §4.6: "sleeps briefly when all runnables report no
// progress").
type Runnable interface {
	PollOnce() bool
}

// Reactor is the single-threaded cooperative scheduler (C8, spec.md
// §4.6): it polls a fixed set of Runnables in turn, forever, sleeping
// briefly whenever a full pass makes no progress, until Stop is
// called. Modeled on the teacher's Start/Stop service lifecycle
// (node/service.go) plus the atomic stop-flag idiom used throughout
// the corpus (e.g. execmgr/simulated's busy flag) rather than a
// context.Context, since the reactor's own exit condition is a single
// cooperative flag checked between transitions (spec.md §5: "a
// shutdown signal flips an atomic flag observed by the reactor between
// polls"), not a cancellable operation tree.
type Reactor struct {
	runnables []Runnable
	idleDelay time.Duration

	stopped int32
	done    chan struct{}

	logger log.Logger
}

// New returns a Reactor that polls runnables in the order given,
// sleeping idleDelay between passes that make no progress at all.
func New(idleDelay time.Duration, runnables ...Runnable) *Reactor {
	return &Reactor{
		runnables: runnables,
		idleDelay: idleDelay,
		done:      make(chan struct{}),
		logger:    log.NewModuleLogger(log.Reactor),
	}
}

// Run drives the poll loop until Stop is called. Intended to be run on
// its own goroutine.
func (r *Reactor) Run() {
	defer close(r.done)
	for atomic.LoadInt32(&r.stopped) == 0 {
		progressed := false
		for _, runnable := range r.runnables {
			if runnable.PollOnce() {
				progressed = true
			}
			if atomic.LoadInt32(&r.stopped) != 0 {
				return
			}
		}
		if !progressed {
			time.Sleep(r.idleDelay)
		}
	}
}

// Stop flips the cooperative shutdown flag and blocks until the
// current pass finishes (spec.md §5: "no forceful thread kill").
func (r *Reactor) Stop() {
	if atomic.CompareAndSwapInt32(&r.stopped, 0, 1) {
		<-r.done
		r.logger.Info("reactor stopped")
	}
}
