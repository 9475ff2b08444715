// Package simulated is a reference execmgr.Manager used by this
// module's own tests, modeled on the teacher's worker/agent Task
// hand-off (work/worker.go, work/agent.go): Execute enqueues work on a
// channel, a single goroutine drains it and applies it against a
// storage.Store, and GetState reports the in-flight status the
// coordinator polls.
package simulated

import (
	"sync"
	"sync/atomic"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/execmgr"
	"github.com/fetchai/ledger-sub006/storage"
)

// Apply computes the post-execution state mutation for a block. Tests
// inject this to control whether a block "succeeds" (store mutated,
// CurrentHash changes) or triggers an error/mismatch path.
type Apply func(store storage.Store, block *chain.Block) error

// Manager is a single-writer, single-reader simulated execution
// engine: Execute schedules work, a background goroutine runs it
// against store using apply, and GetState/LastProcessedBlock report
// progress the way the real execution manager would.
type Manager struct {
	store storage.Store
	apply Apply

	mu                  sync.Mutex
	state               execmgr.State
	lastProcessedBlock  common.Hash
	busy                int32
	workCh              chan *chain.Block
}

// New returns a Manager that applies blocks against store using apply.
func New(store storage.Store, apply Apply) *Manager {
	m := &Manager{
		store:  store,
		apply:  apply,
		state:  execmgr.Idle,
		workCh: make(chan *chain.Block, 1),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for block := range m.workCh {
		m.mu.Lock()
		m.state = execmgr.Active
		m.mu.Unlock()

		err := m.apply(m.store, block)

		m.mu.Lock()
		if err != nil {
			m.state = execmgr.Error
		} else {
			m.state = execmgr.Idle
			m.lastProcessedBlock = block.Hash
		}
		m.mu.Unlock()
		atomic.StoreInt32(&m.busy, 0)
	}
}

func (m *Manager) Execute(block *chain.Block) execmgr.ScheduleStatus {
	if !atomic.CompareAndSwapInt32(&m.busy, 0, 1) {
		return execmgr.Busy
	}
	m.workCh <- block
	return execmgr.Scheduled
}

func (m *Manager) GetState() execmgr.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) SetLastProcessedBlock(hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProcessedBlock = hash
}

func (m *Manager) LastProcessedBlock() common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProcessedBlock
}
