// Package storage declares the Merkle-committed state store contract
// (spec.md §3/§6). The storage engine itself is out of scope (spec.md
// §1); this package is the interface the coordinator drives, plus a
// reference implementation (storage/memstore) used by this module's
// own tests and by the cmd/ledgercore demo.
package storage

import "github.com/fetchai/ledger-sub006/common"

// Store is the content-addressed Merkle store the Block Coordinator
// commits against. Invariant (spec.md §3): after Commit(n) returns h,
// HashExists(h, n) holds until explicitly pruned; RevertToHash fails
// if the hash was never committed.
type Store interface {
	CurrentHash() common.Hash
	LastCommitHash() common.Hash
	Commit(blockNumber uint64) common.Hash
	HashExists(hash common.Hash, blockNumber uint64) bool
	RevertToHash(hash common.Hash, blockNumber uint64) bool
	Reset()

	// Get/Set address generic resource bytes (spec.md §6), used for
	// the reserved "HEAD" and stake-aggregation persistence keys.
	Get(address common.Hash) ([]byte, bool)
	Set(address common.Hash, value []byte)
}
