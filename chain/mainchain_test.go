package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/common"
)

func genesisBlock() *Block {
	g := &Block{BlockNumber: 0}
	g.UpdateDigest()
	return g
}

func child(parent *Block, weight uint64) *Block {
	b := &Block{
		PreviousHash: parent.Hash,
		BlockNumber:  parent.BlockNumber + 1,
		Weight:       weight,
	}
	b.UpdateDigest()
	return b
}

func TestAddBlock_ExtendsHeaviestTip(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	b1 := child(g, 1)
	assert.Equal(t, Added, c.AddBlock(b1))
	assert.Equal(t, b1.Hash, c.GetHeaviestBlock().Hash)
}

func TestAddBlock_DuplicateIsRejected(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)
	b1 := child(g, 1)

	require.Equal(t, Added, c.AddBlock(b1))
	assert.Equal(t, Duplicate, c.AddBlock(b1))
}

func TestAddBlock_LooseWhenParentUnknown(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	orphan := &Block{PreviousHash: common.BytesToHash([]byte("nonexistent")), BlockNumber: 5}
	orphan.UpdateDigest()

	assert.Equal(t, Loose, c.AddBlock(orphan))
	_, ok := c.GetBlock(orphan.Hash)
	assert.True(t, ok, "loose blocks are still stored")
}

func TestAddBlock_DirtyWhenLighterThanCurrentTip(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	heavy := child(g, 10)
	require.Equal(t, Added, c.AddBlock(heavy))

	light := child(g, 1)
	assert.Equal(t, Dirty, c.AddBlock(light))
	assert.Equal(t, heavy.Hash, c.GetHeaviestBlock().Hash)
}

func TestAddBlock_SecondGenesisIsInvalid(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	other := &Block{BlockNumber: 0}
	other.UpdateDigest()

	assert.Equal(t, Invalid, c.AddBlock(other))
}

func TestTimeTravel_WalksHeaviestChainOldestFirst(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	b1 := child(g, 1)
	b2 := child(b1, 1)
	require.Equal(t, Added, c.AddBlock(b1))
	require.Equal(t, Added, c.AddBlock(b2))

	tl := c.TimeTravel(g.Hash)
	require.Equal(t, TravelogueOK, tl.Status)
	require.Len(t, tl.Blocks, 2)
	assert.Equal(t, b1.Hash, tl.Blocks[0].Hash)
	assert.Equal(t, b2.Hash, tl.Blocks[1].Hash)
	assert.Equal(t, c.GetHeaviestBlock().Hash, tl.HeaviestHash)
}

func TestTimeTravel_NotFoundWhenHashUnknown(t *testing.T) {
	g := genesisBlock()
	c := NewInMemory(g)

	tl := c.TimeTravel(common.BytesToHash([]byte("unknown")))
	assert.Equal(t, TravelogueNotFound, tl.Status)
}
