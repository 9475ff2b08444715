package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a bare-bones Backend for exercising persistentChain
// without pulling in storage/memstore's leveldb/badger dependencies.
type fakeBackend struct {
	data map[string][]byte
}

func newFakeBackend() *fakeBackend { return &fakeBackend{data: make(map[string][]byte)} }

func (b *fakeBackend) Get(key []byte) ([]byte, bool) {
	v, ok := b.data[string(key)]
	return v, ok
}

func (b *fakeBackend) Put(key, value []byte) {
	b.data[string(key)] = append([]byte(nil), value...)
}

func TestNewPersistent_FreshBackendSeedsGenesis(t *testing.T) {
	g := genesisBlock()
	c, err := NewPersistent(newFakeBackend(), g)
	require.NoError(t, err)
	assert.Equal(t, g.Hash, c.Genesis().Hash)
	assert.Equal(t, g.Hash, c.GetHeaviestBlock().Hash)
}

func TestNewPersistent_RecoversBlocksAcrossRestart(t *testing.T) {
	g := genesisBlock()
	backend := newFakeBackend()

	c1, err := NewPersistent(backend, g)
	require.NoError(t, err)

	b1 := child(g, 1)
	require.Equal(t, Added, c1.AddBlock(b1))
	b2 := child(b1, 1)
	require.Equal(t, Added, c1.AddBlock(b2))

	c2, err := NewPersistent(backend, g)
	require.NoError(t, err)
	assert.Equal(t, b2.Hash, c2.GetHeaviestBlock().Hash)

	got, ok := c2.GetBlock(b1.Hash)
	require.True(t, ok)
	assert.Equal(t, b1.BlockNumber, got.BlockNumber)
}

func TestPersistentChain_RemoveBlockTombstonesAcrossRestart(t *testing.T) {
	g := genesisBlock()
	backend := newFakeBackend()

	c1, err := NewPersistent(backend, g)
	require.NoError(t, err)

	b1 := child(g, 1)
	require.Equal(t, Added, c1.AddBlock(b1))
	require.True(t, c1.RemoveBlock(b1.Hash))

	c2, err := NewPersistent(backend, g)
	require.NoError(t, err)
	_, ok := c2.GetBlock(b1.Hash)
	assert.False(t, ok, "a removed block must not be resurrected on recovery")
}
