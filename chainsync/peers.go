package chainsync

import (
	"math/rand"
	"sync"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/common"
)

// PeerID identifies a directly connected peer on the gossip/RPC
// fabric. Reuses the 20-byte identity type rather than inventing a
// parallel NodeID (spec.md GLOSSARY keeps identities uniform across
// miners, stakers, and peers).
type PeerID = common.Address

// RPCClient issues the TimeTravel request (spec.md §6) against a
// peer, returning immediately with a Promise the caller polls.
type RPCClient interface {
	TimeTravel(peer PeerID, from common.Hash) *Promise
}

// GossipTransport broadcasts a locally-produced block to the network
// (spec.md §4.2 "broadcast_block"). The muddle-style network itself
// is out of scope (spec.md §1); this is the seam the core drives.
type GossipTransport interface {
	Broadcast(b *chain.Block)
}

// PeerSet is the directly-connected, trust-scored peer set the Chain
// Sync Service selects from (spec.md §4.2 SYNCHRONISING: "select one
// trusted peer uniformly at random").
type PeerSet interface {
	Peers() []PeerID
	// RandomPeer returns a uniformly random peer from the
	// currently-connected set, or ok=false if none are connected.
	RandomPeer() (peer PeerID, ok bool)
	// UpdateTrust adjusts peer's trust score by delta (spec.md §4.2
	// Gossip path: "update the sender's trust score"; §4.2 Failure
	// semantics: "negative trust feedback").
	UpdateTrust(peer PeerID, delta int)
	TrustScore(peer PeerID) int
}

// MemoryPeerSet is a reference PeerSet used by this module's own tests,
// modeled on the teacher's in-memory validator-set bookkeeping
// (consensus/istanbul/validator/default.go) rather than any real
// transport-layer peer table, since peer discovery is out of scope
// (spec.md §1).
type MemoryPeerSet struct {
	mu    sync.Mutex
	trust map[PeerID]int
	rng   *rand.Rand
}

// NewMemoryPeerSet returns a PeerSet seeded with peers, each starting
// at trust score 0. The concrete type is returned (rather than the
// PeerSet interface) so callers can also reach AddPeer/RemovePeer.
func NewMemoryPeerSet(peers []PeerID) *MemoryPeerSet {
	trust := make(map[PeerID]int, len(peers))
	for _, p := range peers {
		trust[p] = 0
	}
	return &MemoryPeerSet{trust: trust, rng: rand.New(rand.NewSource(1))}
}

func (s *MemoryPeerSet) Peers() []PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerID, 0, len(s.trust))
	for p := range s.trust {
		out = append(out, p)
	}
	return out
}

func (s *MemoryPeerSet) RandomPeer() (PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trust) == 0 {
		return PeerID{}, false
	}
	peers := make([]PeerID, 0, len(s.trust))
	for p := range s.trust {
		peers = append(peers, p)
	}
	return peers[s.rng.Intn(len(peers))], true
}

func (s *MemoryPeerSet) UpdateTrust(peer PeerID, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trust[peer] += delta
}

func (s *MemoryPeerSet) TrustScore(peer PeerID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust[peer]
}

// AddPeer registers a newly connected peer at trust score 0, or a
// no-op if already present.
func (s *MemoryPeerSet) AddPeer(peer PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trust[peer]; !ok {
		s.trust[peer] = 0
	}
}

// RemovePeer drops a disconnected peer.
func (s *MemoryPeerSet) RemovePeer(peer PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trust, peer)
}
