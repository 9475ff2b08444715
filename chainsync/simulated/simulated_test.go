package simulated

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/chainsync"
	"github.com/fetchai/ledger-sub006/common"
)

func TestLoopbackRPC_TimeTravelResolvesImmediatelyAgainstLocalChain(t *testing.T) {
	g := &chain.Block{BlockNumber: 0}
	g.UpdateDigest()
	c := chain.NewInMemory(g)

	b1 := &chain.Block{PreviousHash: g.Hash, BlockNumber: 1, Weight: 1}
	b1.UpdateDigest()
	require.Equal(t, chain.Added, c.AddBlock(b1))

	rpc := NewLoopbackRPC(c)
	p := rpc.TimeTravel(common.Address{}, g.Hash)

	status, result := p.Poll()
	require.Equal(t, chainsync.Success, status)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, b1.Hash, result.Blocks[0].Hash)
}

func TestNullTransport_BroadcastIsANoop(t *testing.T) {
	b := &chain.Block{BlockNumber: 1}
	b.UpdateDigest()

	assert.NotPanics(t, func() { NullTransport{}.Broadcast(b) })
}
