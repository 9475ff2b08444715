// Package telemetry exposes the coordinator/sync counters and gauges
// for the (out-of-scope) HTTP introspection surface (SPEC_FULL.md §6).
// Two registries are kept side by side, matching the teacher's own
// mixed usage: Prometheus collectors (github.com/prometheus/client_golang)
// for the metrics a /metrics handler would scrape, and a parallel
// go-metrics registry (github.com/rcrowley/go-metrics) in the teacher's
// own in-process counter idiom (work/worker.go's
// metrics.NewRegisteredCounter), for whatever in-process consumer
// wants Go-native values rather than a scrape format.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fetchai/ledger-sub006/chain"
)

// Registry bundles the counters and gauges the coordinator and chain
// sync service report into.
type Registry struct {
	CoordinatorState          *prometheus.GaugeVec
	CoordinatorBlocksExecuted prometheus.Counter
	CoordinatorErrors         prometheus.Counter

	ChainSyncState       *prometheus.GaugeVec
	ChainSyncBlocksAdded *prometheus.CounterVec

	legacy struct {
		blocksExecuted gometrics.Counter
		blocksAdded    map[chain.AddBlockOutcome]gometrics.Counter
	}
}

// New constructs and registers a Registry against reg (pass
// prometheus.NewRegistry() in production, or a throwaway registry in
// tests to avoid global-registry collisions).
func New(reg prometheus.Registerer) *Registry {
	t := &Registry{
		CoordinatorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coordinator_state",
			Help: "Current Block Coordinator state (1 for the active state, 0 otherwise), labeled by state name.",
		}, []string{"state"}),
		CoordinatorBlocksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_blocks_executed_total",
			Help: "Total blocks successfully committed by the Block Coordinator.",
		}),
		CoordinatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_errors_total",
			Help: "Total times the execution manager reported ERROR/STALLED to the Block Coordinator.",
		}),
		ChainSyncState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainsync_state",
			Help: "Current Chain Sync Service state (1 for the active state, 0 otherwise), labeled by state name.",
		}, []string{"state"}),
		ChainSyncBlocksAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_blocks_added_total",
			Help: "Total blocks processed by the Chain Sync Service, labeled by AddBlock outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(t.CoordinatorState, t.CoordinatorBlocksExecuted, t.CoordinatorErrors, t.ChainSyncState, t.ChainSyncBlocksAdded)

	t.legacy.blocksExecuted = gometrics.NewRegisteredCounter("coordinator/blocksexecuted", gometrics.DefaultRegistry)
	t.legacy.blocksAdded = map[chain.AddBlockOutcome]gometrics.Counter{
		chain.Added:     gometrics.NewRegisteredCounter("chainsync/added", gometrics.DefaultRegistry),
		chain.Loose:     gometrics.NewRegisteredCounter("chainsync/loose", gometrics.DefaultRegistry),
		chain.Duplicate: gometrics.NewRegisteredCounter("chainsync/duplicate", gometrics.DefaultRegistry),
		chain.Invalid:   gometrics.NewRegisteredCounter("chainsync/invalid", gometrics.DefaultRegistry),
		chain.Dirty:     gometrics.NewRegisteredCounter("chainsync/dirty", gometrics.DefaultRegistry),
	}

	return t
}

// ObserveCoordinatorState sets the active-state gauge for name,
// zeroing every other known state label.
func (t *Registry) ObserveCoordinatorState(all []string, active string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		t.CoordinatorState.WithLabelValues(s).Set(v)
	}
}

// ObserveChainSyncState is ObserveCoordinatorState's counterpart for
// the Chain Sync Service.
func (t *Registry) ObserveChainSyncState(all []string, active string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		t.ChainSyncState.WithLabelValues(s).Set(v)
	}
}

// RecordBlockExecuted increments the executed-block counters after a
// successful POST_EXEC_BLOCK_VALIDATION commit.
func (t *Registry) RecordBlockExecuted() {
	t.CoordinatorBlocksExecuted.Inc()
	t.legacy.blocksExecuted.Inc(1)
}

// RecordExecutionError increments the error counters after the
// execution manager reports ERROR/STALLED.
func (t *Registry) RecordExecutionError() {
	t.CoordinatorErrors.Inc()
}

// RecordAddBlockOutcome increments the per-category chain-sync
// counters (spec.md §4.2: "Per-category counters are kept").
func (t *Registry) RecordAddBlockOutcome(outcome chain.AddBlockOutcome) {
	t.ChainSyncBlocksAdded.WithLabelValues(outcome.String()).Inc()
	if c, ok := t.legacy.blocksAdded[outcome]; ok {
		c.Inc(1)
	}
}
