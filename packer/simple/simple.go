// Package simple is a reference packer.Packer used by this module's
// own tests, modeled on the teacher's FIFO mempool draining in
// work/worker.go's commitTransactions: drain the whole pending queue
// into slices round-robin, holding back only transactions whose lane
// mask does not fit; slices have no size budget.
package simple

import (
	"sync"

	"github.com/fetchai/ledger-sub006/chain"
)

type Packer struct {
	mu      sync.Mutex
	pending []chain.TransactionLayout
}

// New returns an empty FIFO packer.
func New() *Packer {
	return &Packer{}
}

func (p *Packer) EnqueueTransaction(tx chain.TransactionLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, tx)
}

func (p *Packer) GetBacklog() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.pending))
}

// GenerateBlock fills block.Slices by distributing pending
// transactions round-robin across numSlices slices, honoring each
// transaction's lane mask against numLanes. The chain argument is
// accepted to match spec.md §6's packer contract (a real packer would
// consult the heaviest view for double-spend exclusion); this
// reference packer does not need to inspect it.
func (p *Packer) GenerateBlock(block *chain.Block, numLanes uint64, numSlices int, _ chain.Chain) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slices := make([]chain.Slice, numSlices)
	var remaining []chain.TransactionLayout
	for i, tx := range p.pending {
		if tx.LaneMask != 0 && tx.LaneMask&(numLanes-1) == 0 {
			remaining = append(remaining, tx)
			continue
		}
		slices[i%numSlices] = append(slices[i%numSlices], tx)
	}
	p.pending = remaining
	block.Slices = slices
}
