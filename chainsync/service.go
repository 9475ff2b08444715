// Package chainsync implements the Chain Sync Service (C6, spec.md
// §4.2): peer selection and the time-travel protocol state machine
// that walks a peer's chain backward to a common ancestor then forward
// to its heaviest tip, plus the gossip sink new blocks arrive on.
// Shaped after the teacher's istanbul core (tagged state, per-state
// handler, cooperative repolling) the same way coordinator is, since
// the corpus has no dedicated chain-sync state machine to ground on
// directly — klaytn's block sync lives in the (out-of-scope) eth/62-66
// downloader protocol, not a clean small state machine.
package chainsync

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/reactor"
)

// State is one of the Chain Sync Service's 6 states (spec.md §4.2).
type State uint8

const (
	Synchronising State = iota
	StartSyncWithPeer
	RequestNextBlocks
	WaitForNextBlocks
	CompleteSyncWithPeer
	Synchronised
)

func (s State) String() string {
	switch s {
	case Synchronising:
		return "SYNCHRONISING"
	case StartSyncWithPeer:
		return "START_SYNC_WITH_PEER"
	case RequestNextBlocks:
		return "REQUEST_NEXT_BLOCKS"
	case WaitForNextBlocks:
		return "WAIT_FOR_NEXT_BLOCKS"
	case CompleteSyncWithPeer:
		return "COMPLETE_SYNC_WITH_PEER"
	case Synchronised:
		return "SYNCHRONISED"
	default:
		return "UNKNOWN"
	}
}

// Counters tallies AddBlock outcomes observed via both sync and
// gossip (spec.md §4.2: "Per-category counters are kept").
type Counters struct {
	Added      uint64
	Loose      uint64
	Duplicate  uint64
	Invalid    uint64
	Dirty      uint64
}

func (c *Counters) record(outcome chain.AddBlockOutcome) {
	switch outcome {
	case chain.Added:
		c.Added++
	case chain.Loose:
		c.Loose++
	case chain.Duplicate:
		c.Duplicate++
	case chain.Invalid:
		c.Invalid++
	case chain.Dirty:
		c.Dirty++
	}
}

// Config holds the Chain Sync Service's tunables from spec.md §5's
// timeout table.
type Config struct {
	RPCPollInterval    time.Duration
	PeerFailBackoffUnit time.Duration
	ResyncTimer        time.Duration
	LooseThreshold     int
	AncestorLimit      int
}

// DefaultConfig returns the spec.md §5 defaults.
func DefaultConfig() Config {
	return Config{
		RPCPollInterval:     100 * time.Millisecond,
		PeerFailBackoffUnit: 100 * time.Millisecond,
		ResyncTimer:         20 * time.Second,
		LooseThreshold:      5,
		AncestorLimit:       5000,
	}
}

type peerSyncState struct {
	peer                PeerID
	blockResolving      common.Hash
	pending             *Promise
	consecutiveFailures int
	backoffUntil        time.Time
	ancestorSteps       int
}

// Service is the Chain Sync Service (C6).
type Service struct {
	cfg Config

	chain     chain.Chain
	consensus consensus.Contract
	rpc       RPCClient
	peers     PeerSet
	transport GossipTransport
	clock     clock.Clock

	state State
	sync  *peerSyncState

	// countersMu guards counters and looseCount, mutated from both the
	// reactor thread (sync path) and gossip worker threads (spec.md §5:
	// "the gossip callback... may be invoked on any worker thread").
	countersMu sync.Mutex
	counters   Counters
	looseCount int
	resyncTimer *reactor.PeriodicAction

	blocksFeed event.Feed

	logger log.Logger
}

// New constructs a Service. The RPCClient and GossipTransport are the
// only wire-level seams; everything else is pure state.
func New(cfg Config, c chain.Chain, cc consensus.Contract, rpc RPCClient, peers PeerSet, transport GossipTransport, clk clock.Clock) *Service {
	resyncTimer := reactor.NewPeriodicAction(clk, cfg.ResyncTimer, nil)
	// Consume the immediate first fire PeriodicAction arms by default, so
	// the resync timer counts a full period from construction instead of
	// forcing an immediate SYNCHRONISED -> SYNCHRONISING transition.
	resyncTimer.Poll()

	return &Service{
		cfg:         cfg,
		chain:       c,
		consensus:   cc,
		rpc:         rpc,
		peers:       peers,
		transport:   transport,
		clock:       clk,
		state:       Synchronising,
		resyncTimer: resyncTimer,
		logger:      log.NewModuleLogger(log.ChainSync),
	}
}

// State returns the current state.
func (s *Service) State() State { return s.state }

// Counters returns a snapshot of the AddBlock outcome tallies.
func (s *Service) Counters() Counters {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	return s.counters
}

func (s *Service) recordOutcome(outcome chain.AddBlockOutcome) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters.record(outcome)
	if outcome == chain.Loose {
		s.looseCount++
	}
}

func (s *Service) recordInvalid() {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters.Invalid++
}

func (s *Service) bumpLoose() {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.looseCount++
}

func (s *Service) drainLooseSignal() bool {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	over := s.looseCount > s.cfg.LooseThreshold
	if over {
		s.looseCount = 0
	}
	return over
}

// SubscribeBroadcasts lets a test or a real transport adapter observe
// locally-produced blocks handed to BroadcastBlock.
func (s *Service) SubscribeBroadcasts(ch chan<- *chain.Block) event.Subscription {
	return s.blocksFeed.Subscribe(ch)
}

// BroadcastBlock hands a locally-mined block to the gossip channel
// (spec.md §4.2 "broadcast_block called by the coordinator after
// mining"). It satisfies coordinator.BlockSink.
func (s *Service) BroadcastBlock(b *chain.Block) {
	s.blocksFeed.Send(b)
	if s.transport != nil {
		s.transport.Broadcast(b)
	}
}

// PollOnce advances the Chain Sync Service by one transition (spec.md
// §4.2), reporting whether it changed state this call (spec.md §4.6).
func (s *Service) PollOnce() bool {
	before := s.state
	switch s.state {
	case Synchronising:
		s.doSynchronising()
	case StartSyncWithPeer:
		s.doStartSyncWithPeer()
	case RequestNextBlocks:
		s.doRequestNextBlocks()
	case WaitForNextBlocks:
		s.doWaitForNextBlocks()
	case CompleteSyncWithPeer:
		s.doCompleteSyncWithPeer()
	case Synchronised:
		s.doSynchronised()
	}
	return s.state != before
}

func (s *Service) transition(next State) {
	if s.state != next {
		s.logger.Debug("state transition", "from", s.state, "to", next)
	}
	s.state = next
}

// doSynchronising selects a trusted peer uniformly at random, or goes
// straight to SYNCHRONISED if none is connected (spec.md §4.2
// SYNCHRONISING).
func (s *Service) doSynchronising() {
	peer, ok := s.peers.RandomPeer()
	if !ok {
		s.transition(Synchronised)
		return
	}
	s.sync = &peerSyncState{peer: peer}
	s.transition(StartSyncWithPeer)
}

// doStartSyncWithPeer biases the starting point to the heaviest
// block's parent, absorbing the case where the local heaviest was
// just produced and the peer has not received it yet (spec.md §4.2
// START_SYNC_WITH_PEER).
func (s *Service) doStartSyncWithPeer() {
	heaviest := s.chain.GetHeaviestBlock()
	resolving := heaviest.Hash
	if !heaviest.IsGenesis() {
		if parent, ok := s.chain.GetBlock(heaviest.PreviousHash); ok {
			resolving = parent.Hash
		}
	}
	s.sync.blockResolving = resolving
	s.transition(RequestNextBlocks)
}

// doRequestNextBlocks issues the TimeTravel RPC and moves to
// WAIT_FOR_NEXT_BLOCKS with a pending promise (spec.md §4.2
// REQUEST_NEXT_BLOCKS).
func (s *Service) doRequestNextBlocks() {
	if !s.sync.backoffUntil.IsZero() && s.clock.Now().Before(s.sync.backoffUntil) {
		return
	}
	s.sync.pending = s.rpc.TimeTravel(s.sync.peer, s.sync.blockResolving)
	s.transition(WaitForNextBlocks)
}

// doWaitForNextBlocks polls the pending promise (spec.md §4.2
// WAIT_FOR_NEXT_BLOCKS).
func (s *Service) doWaitForNextBlocks() {
	status, result := s.sync.pending.Poll()
	switch status {
	case Waiting:
		return
	case Failed, TimedOut:
		s.sync.consecutiveFailures++
		s.peers.UpdateTrust(s.sync.peer, -1)
		if s.sync.consecutiveFailures >= 3 {
			s.transition(CompleteSyncWithPeer)
			return
		}
		s.sync.backoffUntil = s.clock.Now().Add(time.Duration(s.sync.consecutiveFailures) * s.cfg.PeerFailBackoffUnit)
		s.transition(RequestNextBlocks)
		return
	case Success:
		s.sync.consecutiveFailures = 0
		s.handleSuccess(result)
	}
}

func (s *Service) handleSuccess(result chain.Travelogue) {
	if result.Status == chain.TravelogueNotFound {
		s.sync.ancestorSteps++
		if s.sync.ancestorSteps >= s.cfg.AncestorLimit {
			s.logger.Warn("ancestor walk exceeded limit, abandoning peer", "peer", s.sync.peer)
			s.transition(CompleteSyncWithPeer)
			return
		}
		if b, ok := s.chain.GetBlock(s.sync.blockResolving); ok && !b.IsGenesis() {
			s.sync.blockResolving = b.PreviousHash
			s.transition(RequestNextBlocks)
			return
		}
		s.transition(CompleteSyncWithPeer)
		return
	}

	if len(result.Blocks) == 0 {
		s.transition(CompleteSyncWithPeer)
		return
	}

	s.handleChainResponse(result)
}

// handleChainResponse applies blocks oldest-first, classifying each
// outcome, then picks the next block_resolving or completes the sync
// (spec.md §4.2 HandleChainResponse).
func (s *Service) handleChainResponse(result chain.Travelogue) {
	for _, b := range result.Blocks {
		if b.IsGenesis() {
			continue
		}
		b.UpdateDigest()
		if s.consensus.ValidBlock(b) != consensus.Yes {
			s.recordInvalid()
			continue
		}
		outcome := s.chain.AddBlock(b)
		s.recordOutcome(outcome)
	}

	last := result.Blocks[len(result.Blocks)-1]
	if last.Hash == result.HeaviestHash || last.BlockNumber > result.BlockNumber {
		s.transition(CompleteSyncWithPeer)
		return
	}

	for i := len(result.Blocks) - 1; i >= 0; i-- {
		if _, ok := s.chain.GetBlock(result.Blocks[i].Hash); ok {
			s.sync.blockResolving = result.Blocks[i].Hash
			s.transition(RequestNextBlocks)
			return
		}
	}
	// None of the returned blocks are held locally (all invalid):
	// nothing more can be made of this peer this round.
	s.transition(CompleteSyncWithPeer)
}

// doCompleteSyncWithPeer clears per-peer state (spec.md §4.2
// COMPLETE_SYNC_WITH_PEER).
func (s *Service) doCompleteSyncWithPeer() {
	s.sync = nil
	s.transition(Synchronised)
}

// doSynchronised re-enters SYNCHRONISING when gossip has revealed too
// many loose blocks or the resync timer has expired (spec.md §4.2
// SYNCHRONISED), gated by the Periodic Action (C7, spec.md §4.5).
func (s *Service) doSynchronised() {
	if s.drainLooseSignal() || s.resyncTimer.Poll() {
		s.transition(Synchronising)
	}
}

// HandleGossipBlock processes a block received on the "blocks" gossip
// channel, accepted regardless of the service's current state (spec.md
// §4.2 Gossip path). May be called from any worker goroutine.
func (s *Service) HandleGossipBlock(from PeerID, b *chain.Block) {
	b.UpdateDigest()

	if s.consensus.ValidBlock(b) != consensus.Yes {
		s.peers.UpdateTrust(from, -1)
		s.bumpLoose()
		return
	}

	outcome := s.chain.AddBlock(b)
	s.recordOutcome(outcome)
	if outcome == chain.Loose {
		s.peers.UpdateTrust(from, 0)
		return
	}
	s.peers.UpdateTrust(from, 1)
}
