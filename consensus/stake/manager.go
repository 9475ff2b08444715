package stake

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/storage"
)

// PersistKey is the reserved resource address Persist writes the stake
// manager to (spec.md §6).
const PersistKey = "fetch.token.state.aggregation.stake"

// maxHistory bounds the retained snapshot history (spec.md §3: "trimmed
// to the most recent N=1000 entries").
const maxHistory = 1000

// Delta is a queued stake change, keyed to the block index at which it
// takes effect. A positive Amount is a spin-up (stake added at
// ApplyAt); a negative Amount is a cool-down (stake withdrawn). Queuing
// by block index mirrors the teacher's istanbul vote queue
// (consensus/istanbul/backend/snapshot.go apply), replacing "pending
// votes applied at an epoch boundary" with "pending stake deltas
// applied at an arbitrary future block index".
type Delta struct {
	Identity common.Address
	Amount   int64
	ApplyAt  uint64
}

// Manager is the Stake Manager (C2, spec.md §3): a pending update queue
// plus a history of snapshots by block index.
type Manager struct {
	mu sync.Mutex

	pending []Delta
	stakes  map[common.Address]uint64

	current uint64
	history map[uint64]*Snapshot
	order   []uint64 // ascending block indices present in history, for O(1) trim

	logger log.Logger
}

// NewManager returns a Manager seeded with an initial snapshot at block
// index 0 (the genesis stake distribution).
func NewManager(genesis *Snapshot) *Manager {
	if genesis == nil {
		genesis = NewSnapshot(nil)
	}
	stakes := make(map[common.Address]uint64, genesis.Size())
	for _, r := range genesis.Records() {
		stakes[r.Identity] = r.Stake
	}
	m := &Manager{
		stakes:  stakes,
		history: map[uint64]*Snapshot{0: genesis},
		order:   []uint64{0},
		logger:  log.NewModuleLogger(log.StakeManager),
	}
	return m
}

// Enqueue schedules a stake delta to take effect at block index
// delta.ApplyAt (spec.md §3: "pending update queue, per block index,
// additions/removals with spin-up and cool-down").
func (m *Manager) Enqueue(d Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, d)
}

// Current returns the most recently published snapshot.
func (m *Manager) Current() *Snapshot {
	m.mu.Lock()
	idx := m.current
	m.mu.Unlock()
	return m.SnapshotAt(idx)
}

// UpdateCurrentBlock applies every queued delta with ApplyAt <= idx and,
// if anything changed, publishes a new current snapshot recorded in
// history at idx (spec.md §3). Safe to call with idx <= the current
// watermark; it is then a no-op.
func (m *Manager) UpdateCurrentBlock(idx uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx <= m.current {
		return
	}

	applied, remaining := partitionDue(m.pending, idx)
	if len(applied) == 0 {
		m.current = idx
		return
	}
	m.pending = remaining

	sort.Slice(applied, func(i, j int) bool { return applied[i].ApplyAt < applied[j].ApplyAt })
	for _, d := range applied {
		m.applyDelta(d)
	}

	records := make([]Record, 0, len(m.stakes))
	for addr, stake := range m.stakes {
		records = append(records, Record{Identity: addr, Stake: stake})
	}
	snap := NewSnapshot(records)

	m.current = idx
	m.history[idx] = snap
	m.order = append(m.order, idx)
	m.trimHistory()

	m.logger.Debug("published stake snapshot", "blockIndex", idx, "stakers", snap.Size(), "totalStake", snap.TotalStake())
}

func partitionDue(pending []Delta, idx uint64) (due, remaining []Delta) {
	for _, d := range pending {
		if d.ApplyAt <= idx {
			due = append(due, d)
		} else {
			remaining = append(remaining, d)
		}
	}
	return due, remaining
}

func (m *Manager) applyDelta(d Delta) {
	next := int64(m.stakes[d.Identity]) + d.Amount
	if next <= 0 {
		delete(m.stakes, d.Identity)
		return
	}
	m.stakes[d.Identity] = uint64(next)
}

// trimHistory drops the oldest entries once history exceeds maxHistory
// (spec.md §3/§8: "subject to a cap of 1000").
func (m *Manager) trimHistory() {
	for len(m.order) > maxHistory {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.history, oldest)
	}
}

// SnapshotAt returns the snapshot in effect at block index idx: the
// most recent published snapshot whose index is <= idx.
func (m *Manager) SnapshotAt(idx uint64) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := uint64(0)
	var found *Snapshot
	for _, i := range m.order {
		if i <= idx && i >= best {
			best = i
			found = m.history[i]
		}
	}
	return found
}

// persistedState is the JSON shape written to PersistKey, matching the
// teacher's snapshot persistence convention (json.Marshal into a
// generic resource store) rather than a bespoke binary layout.
type persistedState struct {
	Current uint64   `json:"current"`
	Records []Record `json:"records"`
}

// Persist writes the current snapshot to the reserved stake-aggregation
// resource address (spec.md §6). It is called by lifecycle.Bootstrap
// on first boot and at teardown, and by Consensus.Reset; snapshots
// published by UpdateCurrentBlock are not persisted by the manager.
func (m *Manager) Persist(store storage.Store) error {
	m.mu.Lock()
	idx := m.current
	m.mu.Unlock()
	snap := m.SnapshotAt(idx)

	if snap == nil {
		snap = NewSnapshot(nil)
	}
	blob, err := json.Marshal(persistedState{Current: idx, Records: snap.Records()})
	if err != nil {
		return errors.Wrap(err, "stake: marshal persisted state")
	}
	store.Set(common.BytesToHash([]byte(PersistKey)), blob)
	return nil
}

// LoadPersisted restores a Manager from the reserved stake-aggregation
// resource address, or returns (nil, false) if nothing has been
// persisted yet (fresh genesis).
func LoadPersisted(store storage.Store) (*Manager, bool, error) {
	blob, ok := store.Get(common.BytesToHash([]byte(PersistKey)))
	if !ok {
		return nil, false, nil
	}
	var state persistedState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, false, errors.Wrap(err, "stake: unmarshal persisted state")
	}
	m := NewManager(NewSnapshot(state.Records))
	m.current = state.Current
	m.history = map[uint64]*Snapshot{state.Current: m.history[0]}
	m.order = []uint64{state.Current}
	return m, true, nil
}
