// Package lifecycle implements the top-level construction/teardown
// orchestration the core requires but does not itself own (spec.md
// §1: "Process bring-up and teardown orchestration... is specified
// only as lifecycle contracts the core requires"). Guard is the
// `Defer`-style reverse-order teardown stack (SPEC_FULL.md §5.1);
// Bootstrap sequences genesis/stake loading and the initial consensus
// notification ahead of handing control to the reactor. Modeled on
// the teacher's node.Service Start/Stop contract (node/service.go),
// replacing its p2p/RPC registration with this core's own construction
// steps.
package lifecycle

import (
	"github.com/pkg/errors"

	"github.com/fetchai/ledger-sub006/log"
)

// Guard is a stack of teardown closures, unwound in reverse order on
// both success and failure exit paths (spec.md §9 Design Notes:
// "stack-allocated guards; each construction step installs a deferred
// teardown for the resources it just created"). The zero value is
// ready to use.
type Guard struct {
	teardowns []func() error
	logger    log.Logger
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{logger: log.NewModuleLogger(log.Lifecycle)}
}

// Push registers a teardown closure for a resource that was just
// constructed. Closures run in reverse push order on Unwind.
func (g *Guard) Push(teardown func() error) {
	g.teardowns = append(g.teardowns, teardown)
}

// Unwind runs every registered teardown in reverse order, continuing
// past individual failures so one broken teardown never masks the
// others, and returns their errors joined.
func (g *Guard) Unwind() error {
	var errs []error
	for i := len(g.teardowns) - 1; i >= 0; i-- {
		if err := g.teardowns[i](); err != nil {
			g.logger.Error("teardown step failed", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	g.teardowns = nil
	if len(errs) == 0 {
		return nil
	}
	return errors.Errorf("lifecycle: %d teardown step(s) failed: %v", len(errs), errs)
}
