package stake

import (
	"sync"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/storage"
)

// Consensus is the stake-based Consensus Contract variant (C3,
// spec.md §4.3): leader election by cabinet position, block-interval
// pacing, and entropy/cabinet validation. Modeled on the teacher's
// istanbul backend, which likewise couples a validator set lookup
// (here, BuildCabinet) with block-interval gating before proposing.
type Consensus struct {
	mu sync.Mutex

	clock clock.Clock
	self  common.Address

	manager *Manager

	maxCabinetSize  int
	blockIntervalMs int64
	aeonPeriod      uint64
	defaultStart    int64
	whitelist       []common.Address

	currentBlock *chain.Block
	nextEmission int64 // unix millis, 0 until UpdateCurrentBlock has run once

	logger log.Logger
}

// NewConsensus returns a stake Consensus driven by manager for leader
// election, identifying this node as self.
func NewConsensus(c clock.Clock, manager *Manager, self common.Address) *Consensus {
	return &Consensus{
		clock:           c,
		self:            self,
		manager:         manager,
		maxCabinetSize:  1,
		blockIntervalMs: 1000,
		aeonPeriod:      1,
		logger:          log.NewModuleLogger(log.Consensus),
	}
}

func (c *Consensus) SetMaxCabinetSize(n int)               { c.mu.Lock(); c.maxCabinetSize = n; c.mu.Unlock() }
func (c *Consensus) SetBlockInterval(ms int64)             { c.mu.Lock(); c.blockIntervalMs = ms; c.mu.Unlock() }
func (c *Consensus) SetAeonPeriod(blocks uint64)           { c.mu.Lock(); c.aeonPeriod = blocks; c.mu.Unlock() }
func (c *Consensus) SetDefaultStartTime(unixSeconds int64) { c.mu.Lock(); c.defaultStart = unixSeconds; c.mu.Unlock() }
func (c *Consensus) SetWhitelist(whitelist []common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.whitelist = append([]common.Address(nil), whitelist...)
}

// Reset replaces the active stake snapshot and, when store is
// non-nil, persists it under the reserved stake-aggregation key
// (spec.md §4.3). Kept off the shared consensus.Contract interface to
// avoid an import cycle between consensus and consensus/stake; callers
// that hold a concrete *Consensus reach it directly.
func (c *Consensus) Reset(snapshot *Snapshot, store storage.Store) {
	c.mu.Lock()
	blockIdx := uint64(0)
	if c.currentBlock != nil {
		blockIdx = c.currentBlock.BlockNumber
	}
	c.mu.Unlock()

	stakes := make(map[common.Address]uint64, snapshot.Size())
	for _, r := range snapshot.Records() {
		stakes[r.Identity] = r.Stake
	}

	c.manager.mu.Lock()
	c.manager.pending = nil
	c.manager.stakes = stakes
	c.manager.current = blockIdx
	c.manager.history = map[uint64]*Snapshot{blockIdx: snapshot}
	c.manager.order = []uint64{blockIdx}
	c.manager.mu.Unlock()

	if store != nil {
		if err := c.manager.Persist(store); err != nil {
			c.logger.Error("failed to persist stake snapshot on reset", "err", err)
		}
	}
}

func (c *Consensus) cabinetFor(block *chain.Block) []common.Address {
	idx := block.BlockNumber
	if idx > 0 {
		idx--
	}
	snap := c.manager.SnapshotAt(idx)
	if snap == nil || snap.Size() == 0 {
		return nil
	}
	return BuildCabinet(snap, block.BlockEntropy.Seed, c.maxCabinetSize, c.whitelist)
}

// leaderFor deterministically picks the cabinet member responsible for
// producing the block that follows parent: BuildCabinet already
// returns a reproducible ordering, so the leader is simply the member
// at position (parent.BlockNumber+1) mod |cabinet|.
func leaderFor(cabinet []common.Address, blockNumber uint64) (common.Address, bool) {
	if len(cabinet) == 0 {
		return common.Address{}, false
	}
	return cabinet[blockNumber%uint64(len(cabinet))], true
}

// ValidBlock reports whether b's miner sat in the cabinet derived from
// its parent's stake snapshot and the entropy seed b carries (which
// GenerateNextBlock copies from the parent), and that its entropy is
// well formed (spec.md §4.3: "checks miner in cabinet, entropy
// well-formed, block interval respected").
func (c *Consensus) ValidBlock(b *chain.Block) consensus.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.BlockEntropy.Seed.IsZero() {
		return consensus.No
	}

	cabinet := c.cabinetFor(b)
	if len(cabinet) == 0 {
		// No stake recorded yet (e.g. immediately after genesis):
		// nothing to check a miner against, so any miner is accepted.
		return consensus.Yes
	}
	leader, ok := leaderFor(cabinet, b.BlockNumber)
	if !ok || leader != b.MinerID {
		return consensus.No
	}

	if c.currentBlock != nil && c.blockIntervalMs > 0 {
		elapsed := b.Timestamp - c.currentBlock.Timestamp
		if elapsed*1000 < c.blockIntervalMs {
			return consensus.No
		}
	}
	return consensus.Yes
}

// GenerateNextBlock returns a tentative block when this node is the
// elected leader for the next height and the block interval has
// elapsed since the current head (spec.md §4.3).
func (c *Consensus) GenerateNextBlock() *chain.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentBlock == nil {
		return nil
	}
	nowMs := c.clock.Now().UnixNano() / int64(1e6)
	if nowMs < c.nextEmission {
		return nil
	}

	nextNumber := c.currentBlock.BlockNumber + 1
	cabinet := c.manager.SnapshotAt(c.currentBlock.BlockNumber)
	var leader common.Address
	if cabinet != nil && cabinet.Size() > 0 {
		built := BuildCabinet(cabinet, c.currentBlock.BlockEntropy.Seed, c.maxCabinetSize, c.whitelist)
		l, ok := leaderFor(built, nextNumber)
		if !ok || l != c.self {
			return nil
		}
		leader = l
	} else {
		leader = c.self
	}

	return &chain.Block{
		PreviousHash: c.currentBlock.Hash,
		BlockNumber:  nextNumber,
		MinerID:      leader,
		Timestamp:    c.clock.Now().Unix(),
		Weight:       1,
		BlockEntropy: chain.Entropy{Seed: c.currentBlock.BlockEntropy.Seed},
	}
}

// UpdateCurrentBlock recomputes the next target emission time from
// block's timestamp (spec.md §4.3), and advances the stake manager's
// watermark so a later GenerateNextBlock/ValidBlock call sees any
// stake deltas due by this height.
func (c *Consensus) UpdateCurrentBlock(block *chain.Block) {
	c.mu.Lock()
	c.currentBlock = block
	c.nextEmission = block.Timestamp*1000 + c.blockIntervalMs
	c.mu.Unlock()

	c.manager.UpdateCurrentBlock(block.BlockNumber)
}

var _ consensus.Contract = (*Consensus)(nil)
