// Package simulated is a reference chainsync.RPCClient/GossipTransport
// used by this module's own tests and by the single-node CLI demo
// mode. The real wire-level RPC and gossip transport are out of scope
// (SPEC_FULL.md §5: "required-as-contract interfaces"); this package
// wires the same peer's own chain as both ends of a loopback, modeled
// on execmgr/simulated's single-goroutine hand-off style.
package simulated

import (
	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/chainsync"
	"github.com/fetchai/ledger-sub006/common"
)

// LoopbackRPC answers TimeTravel requests straight out of a local
// chain.Chain, as if the peer queried were this node itself. Useful
// for single-node demo runs and tests that don't need a second chain.
type LoopbackRPC struct {
	Chain chain.Chain
}

// NewLoopbackRPC returns an RPCClient backed by c.
func NewLoopbackRPC(c chain.Chain) *LoopbackRPC {
	return &LoopbackRPC{Chain: c}
}

// TimeTravel resolves immediately against the wrapped chain, ignoring
// peer since a loopback has exactly one chain to ask.
func (r *LoopbackRPC) TimeTravel(peer chainsync.PeerID, from common.Hash) *chainsync.Promise {
	p := chainsync.NewPromise()
	p.Resolve(r.Chain.TimeTravel(from))
	return p
}

// NullTransport discards broadcasts; it is the GossipTransport used
// when a node has no peers to gossip to.
type NullTransport struct{}

func (NullTransport) Broadcast(*chain.Block) {}
