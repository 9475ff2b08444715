// Package consensus declares the Consensus Contract (C3, spec.md
// §4.3): block validity, next-block generation, and the "current
// block" watermark both the Block Coordinator and Chain Sync Service
// consult. Two concrete variants live in consensus/stake and
// consensus/simpow.
package consensus

import (
	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/common"
)

// Verdict is the result of ValidBlock.
type Verdict uint8

const (
	Yes Verdict = iota
	No
)

// Contract is implemented by both the stake-based and simulated-PoW
// consensus variants (spec.md §4.3).
type Contract interface {
	// ValidBlock reports whether b is acceptable: it must be non-loose
	// in the local chain (its parent is present) and satisfy the
	// variant's own rules.
	ValidBlock(b *chain.Block) Verdict

	// GenerateNextBlock returns a tentative Block when this node
	// should mine one this tick, or nil otherwise. The returned
	// block's Hash, MerkleHash, and Weight are proposal values; the
	// coordinator recomputes Hash and MerkleHash after execution
	// (spec.md §4.3).
	GenerateNextBlock() *chain.Block

	// UpdateCurrentBlock notifies consensus of the most recently
	// executed block, recomputing the next target emission time from
	// its timestamp (spec.md §4.3). Called at most once per executed
	// block, after commit (spec.md §5).
	UpdateCurrentBlock(b *chain.Block)

	SetMaxCabinetSize(n int)
	SetBlockInterval(ms int64)
	SetAeonPeriod(blocks uint64)
	SetDefaultStartTime(unixSeconds int64)
	SetWhitelist(whitelist []common.Address)
}
