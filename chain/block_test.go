package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/common"
)

func TestBlock_UpdateDigest_RoundTripsThroughRLPWithSameHash(t *testing.T) {
	b := &Block{
		PreviousHash: common.BytesToHash([]byte{1}),
		BlockNumber:  7,
		MinerID:      common.BytesToAddress([]byte{0xAA}),
		Weight:       3,
		MerkleHash:   common.BytesToHash([]byte{2}),
		Log2NumLanes: 1,
		Slices: []Slice{
			{{Digest: common.BytesToHash([]byte{3}), Fee: 10}},
		},
		BlockEntropy: Entropy{Seed: common.BytesToHash([]byte{4}), Qualified: []common.Address{common.BytesToAddress([]byte{5})}},
	}
	b.UpdateDigest()
	original := b.Hash

	enc, err := rlp.EncodeToBytes(b.canonical())
	require.NoError(t, err)

	var decoded rlpBlock
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))

	restored := &Block{
		PreviousHash: decoded.PreviousHash,
		BlockNumber:  decoded.BlockNumber,
		MinerID:      decoded.MinerID,
		Timestamp:    decoded.Timestamp,
		Weight:       decoded.Weight,
		MerkleHash:   decoded.MerkleHash,
		Log2NumLanes: decoded.Log2NumLanes,
		Slices:       decoded.Slices,
		BlockEntropy: Entropy{Seed: decoded.EntropySeed, Qualified: decoded.Qualified},
	}
	restored.UpdateDigest()

	assert.Equal(t, original, restored.Hash)
}

func TestBlock_UpdateDigest_ExcludesCachedHashAndTotalWeightFromInput(t *testing.T) {
	b := &Block{BlockNumber: 1}
	b.UpdateDigest()
	first := b.Hash

	b.TotalWeight = 999
	b.UpdateDigest()
	assert.Equal(t, first, b.Hash, "total_weight is derived and must not affect the digest")
}

func TestBlock_Clone_DeepCopiesSlicesAndQualifiedList(t *testing.T) {
	b := &Block{
		Slices:       []Slice{{{Digest: common.BytesToHash([]byte{1})}}},
		BlockEntropy: Entropy{Qualified: []common.Address{common.BytesToAddress([]byte{1})}},
	}
	clone := b.Clone()

	clone.Slices[0][0].Digest = common.BytesToHash([]byte{2})
	clone.BlockEntropy.Qualified[0] = common.BytesToAddress([]byte{2})

	assert.Equal(t, common.BytesToHash([]byte{1}), b.Slices[0][0].Digest, "original slice must be unaffected")
	assert.Equal(t, common.BytesToAddress([]byte{1}), b.BlockEntropy.Qualified[0], "original qualified list must be unaffected")
}

func TestBlock_IsGenesis_TrueOnlyForZeroPreviousHash(t *testing.T) {
	genesis := &Block{}
	assert.True(t, genesis.IsGenesis())

	child := &Block{PreviousHash: common.BytesToHash([]byte{1})}
	assert.False(t, child.IsGenesis())
}

func TestBlock_NumLanes_IsTwoToTheLog2(t *testing.T) {
	b := &Block{Log2NumLanes: 3}
	assert.Equal(t, uint64(8), b.NumLanes())
}
