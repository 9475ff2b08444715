// Package chain implements the Main Chain (C4): the rooted DAG-of-blocks
// store, its heaviest-tip bookkeeping, and the Block/TransactionLayout
// data model (spec.md §3). Grounded on the teacher's blockchain/types
// block model and its RLP-based content hashing.
package chain

import (
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"

	"github.com/fetchai/ledger-sub006/common"
)

// TransactionLayout is a summary of a transaction sufficient to
// schedule execution; the payload bytes live in the storage lanes,
// out of scope here (spec.md §3).
type TransactionLayout struct {
	Digest     common.Hash
	LaneMask   uint64
	Resources  []common.Hash
	ValidFrom  int64
	ValidUntil int64
	Fee        uint64
}

// Slice is an ordered set of transaction layouts, the unit of
// parallel scheduling within a block (spec.md GLOSSARY).
type Slice []TransactionLayout

// Entropy is the DKG/beacon output attached to a block and used as a
// randomness source for cabinet derivation. DKG internals are out of
// scope (spec.md §1); only the shape needed by BuildCabinet is kept.
type Entropy struct {
	Seed      common.Hash
	Qualified []common.Address
}

// Block is the unit of replication, identified by a content hash over
// every other field (spec.md §3).
type Block struct {
	Hash         common.Hash `rlp:"-"`
	PreviousHash common.Hash
	BlockNumber  uint64
	MinerID      common.Address
	Timestamp    int64
	Weight       uint64
	MerkleHash   common.Hash
	Log2NumLanes uint8
	Slices       []Slice
	BlockEntropy Entropy
	TotalWeight  uint64 `rlp:"-"` // derived, never part of the digest input
}

// rlpBlock is the canonical digest/wire encoding: every field except
// the cached Hash and the derived TotalWeight (spec.md §6: "the
// digest field is not itself serialised as part of the digest
// input"; TotalWeight is derived along the chain, not producer data).
type rlpBlock struct {
	PreviousHash common.Hash
	BlockNumber  uint64
	MinerID      common.Address
	Timestamp    int64
	Weight       uint64
	MerkleHash   common.Hash
	Log2NumLanes uint8
	Slices       []Slice
	EntropySeed  common.Hash
	Qualified    []common.Address
}

func (b *Block) canonical() rlpBlock {
	return rlpBlock{
		PreviousHash: b.PreviousHash,
		BlockNumber:  b.BlockNumber,
		MinerID:      b.MinerID,
		Timestamp:    b.Timestamp,
		Weight:       b.Weight,
		MerkleHash:   b.MerkleHash,
		Log2NumLanes: b.Log2NumLanes,
		Slices:       b.Slices,
		EntropySeed:  b.BlockEntropy.Seed,
		Qualified:    b.BlockEntropy.Qualified,
	}
}

// UpdateDigest recomputes Hash from the block's canonical encoding.
// Called whenever a producer-side field changes: initial packing, and
// again after execution fills in MerkleHash (spec.md §4.1
// PACK_NEW_BLOCK / WAIT_FOR_NEW_BLOCK_EXECUTION).
func (b *Block) UpdateDigest() {
	enc, err := rlp.EncodeToBytes(b.canonical())
	if err != nil {
		// The canonical struct only contains fixed-size arrays, slices
		// of them, and integers; encoding cannot fail in practice.
		panic(err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(enc)
	b.Hash = common.BytesToHash(h.Sum(nil))
}

// IsGenesis reports whether b has no parent (spec.md §3).
func (b *Block) IsGenesis() bool { return b.PreviousHash.IsZero() }

// NumLanes returns 2^Log2NumLanes (spec.md GLOSSARY).
func (b *Block) NumLanes() uint64 { return uint64(1) << b.Log2NumLanes }

// Clone returns a deep-enough copy safe for a reader to mutate
// (slices/entropy are re-sliced, not aliased) while the chain keeps
// its own copy immutable once stored (spec.md §3 Ownership summary).
func (b *Block) Clone() *Block {
	clone := *b
	clone.Slices = make([]Slice, len(b.Slices))
	for i, s := range b.Slices {
		clone.Slices[i] = append(Slice(nil), s...)
	}
	clone.BlockEntropy.Qualified = append([]common.Address(nil), b.BlockEntropy.Qualified...)
	return &clone
}

// totalWeightAfter computes the derived total_weight of a block given
// its parent's, per spec.md §3 ("sum along chain, derived").
func totalWeightAfter(parentTotalWeight uint64, block *Block) uint64 {
	return parentTotalWeight + block.Weight
}
