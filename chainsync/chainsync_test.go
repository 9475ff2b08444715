package chainsync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/chainsync"
	"github.com/fetchai/ledger-sub006/chainsync/simulated"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/consensus/simpow"
)

// rejectMiner wraps the simulated-PoW contract, whose ValidBlock accepts
// every block and whose SetWhitelist is a no-op, so that blocks mined by
// banned are judged invalid.
type rejectMiner struct {
	*simpow.Consensus
	banned common.Address
}

func (r rejectMiner) ValidBlock(b *chain.Block) consensus.Verdict {
	if b.MinerID == r.banned {
		return consensus.No
	}
	return r.Consensus.ValidBlock(b)
}

func genesisBlock() *chain.Block {
	g := &chain.Block{BlockNumber: 0}
	g.UpdateDigest()
	return g
}

func child(parent *chain.Block, miner common.Address) *chain.Block {
	b := &chain.Block{
		PreviousHash: parent.Hash,
		BlockNumber:  parent.BlockNumber + 1,
		MinerID:      miner,
		Weight:       1,
	}
	b.UpdateDigest()
	return b
}

func pollUntil(t *testing.T, svc *chainsync.Service, cond func() bool, limit int) {
	t.Helper()
	for i := 0; i < limit; i++ {
		svc.PollOnce()
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met after %d polls, state=%s", limit, svc.State())
}

func TestService_SynchronisesImmediatelyWithNoPeers(t *testing.T) {
	g := genesisBlock()
	c := chain.NewInMemory(g)
	clk := clock.NewMock(time.Unix(0, 0))
	cc := simpow.NewConsensus(clk, 1, common.Address{})
	peers := chainsync.NewMemoryPeerSet(nil)

	svc := chainsync.New(chainsync.DefaultConfig(), c, cc, nil, peers, simulated.NullTransport{}, clk)
	svc.PollOnce()

	assert.Equal(t, chainsync.Synchronised, svc.State())
}

func TestService_SyncsFromPeerOntoRemoteHeaviestTip(t *testing.T) {
	g := genesisBlock()
	miner := common.BytesToAddress([]byte{0xAA})

	remote := chain.NewInMemory(g)
	b1 := child(g, miner)
	b2 := child(b1, miner)
	require.Equal(t, chain.Added, remote.AddBlock(b1))
	require.Equal(t, chain.Added, remote.AddBlock(b2))

	local := chain.NewInMemory(g)
	clk := clock.NewMock(time.Unix(0, 0))
	cc := simpow.NewConsensus(clk, 1, common.Address{})
	peerID := common.BytesToAddress([]byte{0x01})
	peers := chainsync.NewMemoryPeerSet([]chainsync.PeerID{peerID})
	rpc := simulated.NewLoopbackRPC(remote)

	svc := chainsync.New(chainsync.DefaultConfig(), local, cc, rpc, peers, simulated.NullTransport{}, clk)

	pollUntil(t, svc, func() bool { return svc.State() == chainsync.Synchronised }, 20)

	assert.Equal(t, remote.GetHeaviestBlock().Hash, local.GetHeaviestBlock().Hash)
	assert.Equal(t, uint64(2), svc.Counters().Added)
}

func TestService_HandleGossipBlock_AcceptsValidRejectsInvalid(t *testing.T) {
	g := genesisBlock()
	allowed := common.BytesToAddress([]byte{0xAA})
	intruder := common.BytesToAddress([]byte{0xBB})

	c := chain.NewInMemory(g)
	clk := clock.NewMock(time.Unix(0, 0))
	cc := rejectMiner{Consensus: simpow.NewConsensus(clk, 1, common.Address{}), banned: intruder}
	peer := common.BytesToAddress([]byte{0x01})
	peers := chainsync.NewMemoryPeerSet([]chainsync.PeerID{peer})

	svc := chainsync.New(chainsync.DefaultConfig(), c, cc, nil, peers, simulated.NullTransport{}, clk)

	good := child(g, allowed)
	svc.HandleGossipBlock(peer, good)
	assert.Equal(t, uint64(1), svc.Counters().Added)
	assert.Equal(t, 1, peers.TrustScore(peer))

	bad := child(g, intruder)
	svc.HandleGossipBlock(peer, bad)
	assert.Equal(t, uint64(1), svc.Counters().Added, "invalid block must not be added")
	assert.Equal(t, 0, peers.TrustScore(peer), "invalid gossip costs trust")
}

func TestService_Synchronised_ResyncsWhenLooseThresholdExceeded(t *testing.T) {
	g := genesisBlock()
	intruder := common.BytesToAddress([]byte{0xBB})

	c := chain.NewInMemory(g)
	clk := clock.NewMock(time.Unix(0, 0))
	cc := rejectMiner{Consensus: simpow.NewConsensus(clk, 1, common.Address{}), banned: intruder}
	peers := chainsync.NewMemoryPeerSet(nil)

	cfg := chainsync.DefaultConfig()
	cfg.LooseThreshold = 2
	svc := chainsync.New(cfg, c, cc, nil, peers, simulated.NullTransport{}, clk)

	// No peers connected: one PollOnce settles straight into SYNCHRONISED.
	svc.PollOnce()
	require.Equal(t, chainsync.Synchronised, svc.State())

	peer := common.BytesToAddress([]byte{0x01})
	for i := 0; i < 3; i++ {
		svc.HandleGossipBlock(peer, child(g, intruder))
	}

	svc.PollOnce()
	assert.Equal(t, chainsync.Synchronising, svc.State())
}

// TestService_ReconcilesForkByWalkingBackToCommonAncestor covers
// spec.md §8 scenario 6: local and remote diverge two blocks after
// genesis at the same height. TimeTravel against the local heaviest's
// parent returns NOT_FOUND, so the service walks block_resolving back one
// block at a time until it lands on the shared ancestor, then adopts
// the remote's heavier branch.
func TestService_ReconcilesForkByWalkingBackToCommonAncestor(t *testing.T) {
	g := genesisBlock()
	localMiner := common.BytesToAddress([]byte{0xAA})
	remoteMiner := common.BytesToAddress([]byte{0xBB})

	local := chain.NewInMemory(g)
	a1 := child(g, localMiner)
	a2 := child(a1, localMiner)
	require.Equal(t, chain.Added, local.AddBlock(a1))
	require.Equal(t, chain.Added, local.AddBlock(a2))

	remote := chain.NewInMemory(g)
	b1 := &chain.Block{PreviousHash: g.Hash, BlockNumber: 1, MinerID: remoteMiner, Weight: 3}
	b1.UpdateDigest()
	b2 := &chain.Block{PreviousHash: b1.Hash, BlockNumber: 2, MinerID: remoteMiner, Weight: 3}
	b2.UpdateDigest()
	require.Equal(t, chain.Added, remote.AddBlock(b1))
	require.Equal(t, chain.Added, remote.AddBlock(b2))

	clk := clock.NewMock(time.Unix(0, 0))
	cc := simpow.NewConsensus(clk, 1, common.Address{})
	peerID := common.BytesToAddress([]byte{0x01})
	peers := chainsync.NewMemoryPeerSet([]chainsync.PeerID{peerID})
	rpc := simulated.NewLoopbackRPC(remote)

	svc := chainsync.New(chainsync.DefaultConfig(), local, cc, rpc, peers, simulated.NullTransport{}, clk)

	pollUntil(t, svc, func() bool { return svc.State() == chainsync.Synchronised }, 50)

	assert.Equal(t, b2.Hash, local.GetHeaviestBlock().Hash, "the heavier remote branch must win")
	assert.Equal(t, uint64(2), svc.Counters().Added)
}

func TestService_Synchronised_ResyncsWhenTimerExpires(t *testing.T) {
	g := genesisBlock()
	c := chain.NewInMemory(g)
	clk := clock.NewMock(time.Unix(0, 0))
	cc := simpow.NewConsensus(clk, 1, common.Address{})
	peers := chainsync.NewMemoryPeerSet(nil)

	cfg := chainsync.DefaultConfig()
	cfg.ResyncTimer = 5 * time.Second
	svc := chainsync.New(cfg, c, cc, nil, peers, simulated.NullTransport{}, clk)

	svc.PollOnce()
	require.Equal(t, chainsync.Synchronised, svc.State())

	clk.Advance(6 * time.Second)
	svc.PollOnce()
	assert.Equal(t, chainsync.Synchronising, svc.State())
}
