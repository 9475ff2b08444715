package stake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/storage/memstore"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func TestManager_UpdateCurrentBlock_AppliesDueDeltasOnly(t *testing.T) {
	genesis := NewSnapshot([]Record{{Identity: addr(1), Stake: 10}})
	m := NewManager(genesis)

	m.Enqueue(Delta{Identity: addr(2), Amount: 5, ApplyAt: 10})
	m.Enqueue(Delta{Identity: addr(3), Amount: 5, ApplyAt: 20})

	m.UpdateCurrentBlock(10)
	snap := m.Current()
	require.Equal(t, 2, snap.Size())
	assertHasStake(t, snap, addr(1), 10)
	assertHasStake(t, snap, addr(2), 5)

	m.UpdateCurrentBlock(20)
	snap = m.Current()
	require.Equal(t, 3, snap.Size())
	assertHasStake(t, snap, addr(3), 5)
}

func TestManager_ApplyDelta_RemovesIdentityOnCooldownToZero(t *testing.T) {
	genesis := NewSnapshot([]Record{{Identity: addr(1), Stake: 10}})
	m := NewManager(genesis)

	m.Enqueue(Delta{Identity: addr(1), Amount: -10, ApplyAt: 5})
	m.UpdateCurrentBlock(5)

	snap := m.Current()
	assert.Equal(t, 0, snap.Size())
}

func TestManager_PersistAndLoad_RoundTrips(t *testing.T) {
	genesis := NewSnapshot([]Record{{Identity: addr(1), Stake: 10}, {Identity: addr(2), Stake: 20}})
	m := NewManager(genesis)
	m.Enqueue(Delta{Identity: addr(3), Amount: 30, ApplyAt: 1})
	m.UpdateCurrentBlock(1)

	store := memstore.New(memstore.NewMemBackend())
	require.NoError(t, m.Persist(store))

	restored, ok, err := LoadPersisted(store)
	require.NoError(t, err)
	require.True(t, ok)

	snap := restored.Current()
	require.Equal(t, 3, snap.Size())
	assertHasStake(t, snap, addr(3), 30)
}

func TestManager_History_TrimmedToThousandMostRecentEntries(t *testing.T) {
	genesis := NewSnapshot([]Record{{Identity: addr(1), Stake: 10}})
	m := NewManager(genesis)

	for i := uint64(1); i <= maxHistory+5; i++ {
		amount := int64(1)
		if i%2 == 0 {
			amount = -1
		}
		m.Enqueue(Delta{Identity: addr(2), Amount: amount, ApplyAt: i})
		m.UpdateCurrentBlock(i)
	}

	assert.LessOrEqual(t, len(m.order), maxHistory)
	assert.LessOrEqual(t, len(m.history), maxHistory)
	assert.NotContains(t, m.history, uint64(0), "the genesis snapshot must have been evicted")
	assert.Contains(t, m.history, uint64(maxHistory+5))
}

func TestLoadPersisted_ReturnsFalseWhenNothingStored(t *testing.T) {
	store := memstore.New(memstore.NewMemBackend())
	_, ok, err := LoadPersisted(store)
	require.NoError(t, err)
	assert.False(t, ok)
}

func assertHasStake(t *testing.T, snap *Snapshot, identity common.Address, expect uint64) {
	t.Helper()
	for _, r := range snap.Records() {
		if r.Identity == identity {
			assert.Equal(t, expect, r.Stake)
			return
		}
	}
	t.Fatalf("identity %s not found in snapshot", identity.String())
}
