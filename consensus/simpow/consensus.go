// Package simpow implements the simulated-PoW Consensus Contract
// variant (C3, spec.md §4.3): a Poisson-distributed emission wait time
// standing in for real proof-of-work, with no stake or cabinet
// bookkeeping. Grounded on the teacher's ethash/clique split — simpow
// plays the role clique plays next to ethash, a deliberately simple
// consensus engine used for tests and low-stakes networks.
package simpow

import (
	"math"
	"math/rand"
	"sync"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/log"
)

// Consensus is the simulated-PoW Consensus Contract variant.
// ValidBlock accepts every block and does not check parent presence;
// GenerateNextBlock draws a Poisson wait
// time with mean BlockInterval, biased 1.05x longer when the previous
// miner was this node (spec.md §4.3: "reduces two-in-a-row
// probability").
type Consensus struct {
	mu sync.Mutex

	clock clock.Clock
	rng   *rand.Rand
	self  common.Address

	blockIntervalMs int64

	currentBlock *chain.Block
	nextEmission int64 // unix millis
	forceEmit    bool  // test hook: GenerateNextBlock returns unconditionally
}

// NewConsensus returns a simulated-PoW Consensus seeded by seed,
// identifying this node as self.
func NewConsensus(c clock.Clock, seed int64, self common.Address) *Consensus {
	return &Consensus{
		clock:           c,
		rng:             rand.New(rand.NewSource(seed)),
		self:            self,
		blockIntervalMs: 1000,
	}
}

func (c *Consensus) SetMaxCabinetSize(int)           {}
func (c *Consensus) SetAeonPeriod(uint64)            {}
func (c *Consensus) SetDefaultStartTime(int64)       {}
func (c *Consensus) SetWhitelist(w []common.Address) {}

func (c *Consensus) SetBlockInterval(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockIntervalMs = ms
}

// ForceNextEmission is a test hook (spec.md §4.3: "a test hook allows
// forcing the next emission") that makes the following
// GenerateNextBlock call return unconditionally, bypassing the
// Poisson wait.
func (c *Consensus) ForceNextEmission() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceEmit = true
}

// ValidBlock always accepts and does not look at b's parent.
// chainsync calls it before chain.AddBlock, so a block whose parent is
// unknown is accepted here and classified Loose by the chain; the
// coordinator only calls it on a block whose parent it has already
// resolved against the chain.
func (c *Consensus) ValidBlock(b *chain.Block) consensus.Verdict {
	return consensus.Yes
}

// poissonWaitMs draws a wait time in milliseconds from an exponential
// distribution with mean meanMs (the inter-arrival time of a Poisson
// process), via inverse-transform sampling.
func poissonWaitMs(rng *rand.Rand, meanMs float64) int64 {
	u := rng.Float64()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return int64(-meanMs * math.Log(u))
}

// GenerateNextBlock returns a tentative block once the Poisson-waited
// time has elapsed since the current head, biasing the mean 1.05x
// longer when this node produced the current block.
func (c *Consensus) GenerateNextBlock() *chain.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentBlock == nil {
		return nil
	}

	nowMs := c.clock.Now().UnixNano() / int64(1e6)
	if !c.forceEmit && nowMs < c.nextEmission {
		return nil
	}
	c.forceEmit = false

	return &chain.Block{
		PreviousHash: c.currentBlock.Hash,
		BlockNumber:  c.currentBlock.BlockNumber + 1,
		MinerID:      c.self,
		Timestamp:    c.clock.Now().Unix(),
		Weight:       1,
	}
}

// UpdateCurrentBlock recomputes the next target emission time,
// applying the anti-repeat bias when block was mined by this node.
func (c *Consensus) UpdateCurrentBlock(block *chain.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentBlock = block
	mean := float64(c.blockIntervalMs)
	if block.MinerID == c.self {
		mean *= 1.05
	}
	nowMs := c.clock.Now().UnixNano() / int64(1e6)
	c.nextEmission = nowMs + poissonWaitMs(c.rng, mean)
}

var _ consensus.Contract = (*Consensus)(nil)
