package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fetchai/ledger-sub006/chain"
)

func TestObserveCoordinatorState_MarksOnlyTheActiveState(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	states := []string{"RELOAD_STATE", "RESET", "SYNCHRONISED"}

	reg.ObserveCoordinatorState(states, "RESET")

	assert.Equal(t, 0.0, testutil.ToFloat64(reg.CoordinatorState.WithLabelValues("RELOAD_STATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CoordinatorState.WithLabelValues("RESET")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.CoordinatorState.WithLabelValues("SYNCHRONISED")))

	reg.ObserveCoordinatorState(states, "SYNCHRONISED")
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.CoordinatorState.WithLabelValues("RESET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CoordinatorState.WithLabelValues("SYNCHRONISED")))
}

func TestRecordBlockExecuted_IncrementsCounter(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.RecordBlockExecuted()
	reg.RecordBlockExecuted()

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.CoordinatorBlocksExecuted))
}

func TestRecordAddBlockOutcome_IncrementsPerCategoryCounter(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.RecordAddBlockOutcome(chain.Added)
	reg.RecordAddBlockOutcome(chain.Added)
	reg.RecordAddBlockOutcome(chain.Loose)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.ChainSyncBlocksAdded.WithLabelValues("ADDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ChainSyncBlocksAdded.WithLabelValues("LOOSE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.ChainSyncBlocksAdded.WithLabelValues("DUPLICATE")))
}
