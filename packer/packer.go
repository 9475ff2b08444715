// Package packer declares the block packer contract (spec.md §6). The
// mempool and scheduling policy are out of scope; the coordinator only
// drives packing through this interface during PACK_NEW_BLOCK.
package packer

import "github.com/fetchai/ledger-sub006/chain"

// Packer fills a freshly-minted block's slices from its backlog,
// constrained by the node's lane/slice geometry and the chain's
// current heaviest view (spec.md §4.1 PACK_NEW_BLOCK).
type Packer interface {
	EnqueueTransaction(tx chain.TransactionLayout)
	GenerateBlock(block *chain.Block, numLanes uint64, numSlices int, c chain.Chain)
	GetBacklog() uint64
}
