// Package coordinator implements the Block Coordinator (C5, spec.md
// §4.1): the single writer into the execution manager and the
// state-commit authority. Modeled on the teacher's istanbul `core`
// state machine (a tagged state plus one handler per state, driven by
// repeated external polling) rather than on any single klaytn file,
// since no file in the corpus couples chain replay, execution
// scheduling, and block production in one machine; the shape is the
// teacher's, the states are the specification's.
package coordinator

import (
	"sync"
	"time"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/clock"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/execmgr"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/packer"
	"github.com/fetchai/ledger-sub006/storage"
)

// State is one of the coordinator's 15 states (spec.md §4.1).
type State uint8

const (
	ReloadState State = iota
	Reset
	Synchronising
	PreExecBlockValidation
	WaitForTransactions
	SynergeticExecution
	ScheduleBlockExecution
	WaitForExecution
	PostExecBlockValidation
	Synchronised
	NewSynergeticExecution
	PackNewBlock
	ExecuteNewBlock
	WaitForNewBlockExecution
	TransmitBlock
)

func (s State) String() string {
	switch s {
	case ReloadState:
		return "RELOAD_STATE"
	case Reset:
		return "RESET"
	case Synchronising:
		return "SYNCHRONISING"
	case PreExecBlockValidation:
		return "PRE_EXEC_BLOCK_VALIDATION"
	case WaitForTransactions:
		return "WAIT_FOR_TRANSACTIONS"
	case SynergeticExecution:
		return "SYNERGETIC_EXECUTION"
	case ScheduleBlockExecution:
		return "SCHEDULE_BLOCK_EXECUTION"
	case WaitForExecution:
		return "WAIT_FOR_EXECUTION"
	case PostExecBlockValidation:
		return "POST_EXEC_BLOCK_VALIDATION"
	case Synchronised:
		return "SYNCHRONISED"
	case NewSynergeticExecution:
		return "NEW_SYNERGETIC_EXECUTION"
	case PackNewBlock:
		return "PACK_NEW_BLOCK"
	case ExecuteNewBlock:
		return "EXECUTE_NEW_BLOCK"
	case WaitForNewBlockExecution:
		return "WAIT_FOR_NEW_BLOCK_EXECUTION"
	case TransmitBlock:
		return "TRANSMIT_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// BlockSink receives blocks this node has finished mining so they can
// be broadcast to peers (spec.md §4.1 TRANSMIT_BLOCK). The Chain Sync
// Service is the production implementation.
type BlockSink interface {
	BroadcastBlock(b *chain.Block)
}

// SynergeticExecutor is the optional DAG/synergetic execution hook
// (spec.md §4.1 SYNERGETIC_EXECUTION). Synergetic execution internals
// are out of scope; when absent the coordinator passes through.
type SynergeticExecutor interface {
	Execute(b *chain.Block)
}

// TransactionRequester asks peers for transactions this node does not
// yet hold (spec.md §4.1 WAIT_FOR_TRANSACTIONS).
type TransactionRequester interface {
	RequestTransactions(digests []common.Hash)
}

// StakeUpdater is notified once per executed block, mirroring
// consensus.Contract.UpdateCurrentBlock but keyed by block index
// (spec.md §4.1 POST_EXEC_BLOCK_VALIDATION: "notify stake manager via
// UpdateCurrentBlock(block_number)"). *stake.Manager satisfies this.
type StakeUpdater interface {
	UpdateCurrentBlock(idx uint64)
}

// Config holds the coordinator's construction parameters and the
// timeout table from spec.md §5.
type Config struct {
	Log2NumLanes uint8
	NumSlices    int

	TxWaitGrace    time.Duration
	TxWaitDeadline time.Duration
	ReloadLimit    int
	ExecPoll       time.Duration
}

// DefaultConfig returns the spec.md §5 timeout defaults for the given
// lane/slice geometry.
func DefaultConfig(log2NumLanes uint8, numSlices int) Config {
	return Config{
		Log2NumLanes:   log2NumLanes,
		NumSlices:      numSlices,
		TxWaitGrace:    5 * time.Second,
		TxWaitDeadline: 600 * time.Second,
		ReloadLimit:    5000,
		ExecPoll:       50 * time.Millisecond,
	}
}

// Coordinator is the Block Coordinator (C5). The zero value is not
// usable; construct with New.
type Coordinator struct {
	cfg Config

	chain     chain.Chain
	store     storage.Store
	exec      execmgr.Manager
	packer    packer.Packer
	consensus consensus.Contract
	sink      BlockSink

	synergetic  SynergeticExecutor
	txRequester TransactionRequester
	stake       StakeUpdater

	clock clock.Clock

	stateMu sync.Mutex
	state   State

	lastExecutedMu sync.RWMutex
	lastExecuted   common.Hash

	// per-block scratch, cleared on RESET.
	blocksToCommonAncestor []*chain.Block
	currentBlock           *chain.Block
	nextBlock              *chain.Block
	pendingTxs             []common.Hash
	haveAskedForMissingTxs bool
	waitStart              time.Time

	scheduledHash common.Hash // hash of the block last handed to exec.Execute

	errorCount  uint64
	fatalErr    error
	fatalLogged bool

	logger log.Logger
}

// New constructs a Coordinator in RELOAD_STATE, which on the first
// poll pins the store to the newest committed ancestor of the heaviest
// tip before SYNCHRONISING begins walking forward.
func New(cfg Config, c chain.Chain, store storage.Store, exec execmgr.Manager, pk packer.Packer, cc consensus.Contract, sink BlockSink, clk clock.Clock) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		chain:        c,
		store:        store,
		exec:         exec,
		packer:       pk,
		consensus:    cc,
		sink:         sink,
		clock:        clk,
		state:        ReloadState,
		lastExecuted: c.Genesis().Hash,
		logger:       log.NewModuleLogger(log.Coordinator),
	}
}

// SetSynergeticExecutor wires the optional DAG execution hook.
func (c *Coordinator) SetSynergeticExecutor(s SynergeticExecutor) { c.synergetic = s }

// SetTransactionRequester wires the optional missing-transaction
// request path.
func (c *Coordinator) SetTransactionRequester(r TransactionRequester) { c.txRequester = r }

// SetStakeUpdater wires the stake manager's per-block notification.
func (c *Coordinator) SetStakeUpdater(s StakeUpdater) { c.stake = s }

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// LastExecutedBlock is the protected read-only accessor any thread may
// call for is_synced()-style queries (spec.md §5).
func (c *Coordinator) LastExecutedBlock() common.Hash {
	c.lastExecutedMu.RLock()
	defer c.lastExecutedMu.RUnlock()
	return c.lastExecuted
}

func (c *Coordinator) setLastExecuted(h common.Hash) {
	c.lastExecutedMu.Lock()
	c.lastExecuted = h
	c.lastExecutedMu.Unlock()
}

// IsSynced reports whether the coordinator is at rest with its last
// executed block equal to the chain's heaviest tip (spec.md §4.1,
// §8).
func (c *Coordinator) IsSynced() bool {
	if c.State() != Synchronised {
		return false
	}
	heaviest := c.chain.GetHeaviestBlock()
	return heaviest != nil && c.LastExecutedBlock() == heaviest.Hash
}

// ErrorCount returns the number of times the execution manager has
// reported ERROR/STALLED across this coordinator's lifetime, exposed
// for telemetry.
func (c *Coordinator) ErrorCount() uint64 { return c.errorCount }

// FatalErr returns the reason RELOAD_STATE could not establish a
// committed ancestor, or nil. A non-nil result means the coordinator
// must not be polled further (spec.md §7 "process must refuse to
// start").
func (c *Coordinator) FatalErr() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.fatalErr
}

func (c *Coordinator) transition(next State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = next
	c.stateMu.Unlock()
	if prev != next {
		c.logger.Debug("state transition", "from", prev, "to", next)
	}
}

// PollOnce advances the coordinator by one transition; it is expected
// to be called repeatedly by the reactor (spec.md §4.1). It performs
// bounded work, never blocks, and reports whether it made progress
// (changed state) this call, the signal the reactor uses to decide
// whether to sleep before its next pass (spec.md §4.6).
func (c *Coordinator) PollOnce() bool {
	before := c.State()
	c.pollOnce(before)
	return c.State() != before
}

func (c *Coordinator) pollOnce(state State) {
	switch state {
	case ReloadState:
		c.doReload()
	case Reset:
		c.doReset()
	case Synchronising:
		c.doSynchronising()
	case PreExecBlockValidation:
		c.doPreExecValidation()
	case WaitForTransactions:
		c.doWaitForTransactions()
	case SynergeticExecution:
		c.doSynergetic(false)
	case ScheduleBlockExecution:
		c.doSchedule(c.currentBlock, WaitForExecution)
	case WaitForExecution:
		c.doWaitForExecution(false)
	case PostExecBlockValidation:
		c.doPostExecValidation()
	case Synchronised:
		c.doSynchronised()
	case NewSynergeticExecution:
		c.doSynergetic(true)
	case PackNewBlock:
		c.doPackNewBlock()
	case ExecuteNewBlock:
		c.doSchedule(c.nextBlock, WaitForNewBlockExecution)
	case WaitForNewBlockExecution:
		c.doWaitForExecution(true)
	case TransmitBlock:
		c.doTransmitBlock()
	}
}

// doReload walks back from the chain's heaviest tip until it finds a
// block whose (merkle_hash, block_number) the store confirms, bounded
// by cfg.ReloadLimit (spec.md §4.1 RELOAD_STATE).
func (c *Coordinator) doReload() {
	limit := c.cfg.ReloadLimit
	if limit <= 0 {
		limit = 5000
	}
	b := c.chain.GetHeaviestBlock()
	for i := 0; i < limit && b != nil; i++ {
		if c.store.HashExists(b.MerkleHash, b.BlockNumber) {
			c.store.RevertToHash(b.MerkleHash, b.BlockNumber)
			c.exec.SetLastProcessedBlock(b.Hash)
			c.setLastExecuted(b.Hash)
			c.logger.Info("reload complete", "ancestor", b.Hash, "blockNumber", b.BlockNumber)
			c.transition(Reset)
			return
		}
		if b.IsGenesis() {
			break
		}
		parent, ok := c.chain.GetBlock(b.PreviousHash)
		if !ok {
			break
		}
		b = parent
	}

	c.stateMu.Lock()
	if !c.fatalLogged {
		c.fatalErr = errReloadAncestorNotFound
		c.fatalLogged = true
		c.logger.Error("reload could not find a committed ancestor within limit", "limit", limit)
	}
	c.stateMu.Unlock()
}

// doReset clears per-block scratch and re-enters SYNCHRONISING
// (spec.md §4.1 RESET).
func (c *Coordinator) doReset() {
	c.currentBlock = nil
	c.nextBlock = nil
	c.pendingTxs = nil
	c.haveAskedForMissingTxs = false
	c.waitStart = time.Time{}
	c.scheduledHash = common.Hash{}
	c.transition(Synchronising)
}

// doSynchronising computes the path from last_executed_block to the
// chain's heaviest tip via TimeTravel, which already returns the
// oldest-first consecutive run the spec calls for (spec.md §4.1
// SYNCHRONISING).
func (c *Coordinator) doSynchronising() {
	trav := c.chain.TimeTravel(c.LastExecutedBlock())
	if trav.Status == chain.TravelogueNotFound {
		c.logger.Warn("last executed block is not on the heaviest chain, resetting", "lastExecuted", c.LastExecutedBlock())
		c.transition(Reset)
		return
	}
	if len(trav.Blocks) == 0 {
		c.transition(Synchronised)
		return
	}
	c.blocksToCommonAncestor = trav.Blocks
	c.currentBlock = trav.Blocks[0]
	c.transition(PreExecBlockValidation)
}

// doPreExecValidation verifies structural invariants and consensus
// validity of current_block (spec.md §4.1 PRE_EXEC_BLOCK_VALIDATION).
func (c *Coordinator) doPreExecValidation() {
	b := c.currentBlock
	parent, haveParent := c.chain.GetBlock(b.PreviousHash)

	valid := b.Log2NumLanes == c.cfg.Log2NumLanes &&
		len(b.Slices) == c.cfg.NumSlices &&
		haveParent && b.BlockNumber == parent.BlockNumber+1

	if valid && c.consensus.ValidBlock(b) == consensus.Yes {
		c.transition(WaitForTransactions)
		return
	}

	c.logger.Warn("block failed pre-execution validation", "hash", b.Hash, "blockNumber", b.BlockNumber)
	if haveParent {
		c.store.RevertToHash(parent.MerkleHash, parent.BlockNumber)
	}
	c.chain.RemoveBlock(b.Hash)
	c.transition(Reset)
}

// missingDigests returns the transaction digests in b.Slices not yet
// present in storage (spec.md §4.1 WAIT_FOR_TRANSACTIONS).
func missingDigests(store storage.Store, b *chain.Block) []common.Hash {
	var missing []common.Hash
	for _, slice := range b.Slices {
		for _, tx := range slice {
			if _, ok := store.Get(tx.Digest); !ok {
				missing = append(missing, tx.Digest)
			}
		}
	}
	return missing
}

// doWaitForTransactions waits (across polls) for every transaction the
// block references to land in storage, asking peers once after a
// short grace period and giving up after a hard deadline (spec.md
// §4.1 WAIT_FOR_TRANSACTIONS).
func (c *Coordinator) doWaitForTransactions() {
	c.pendingTxs = missingDigests(c.store, c.currentBlock)
	if len(c.pendingTxs) == 0 {
		c.transition(SynergeticExecution)
		return
	}

	if c.waitStart.IsZero() {
		c.waitStart = c.clock.Now()
	}
	elapsed := c.clock.Now().Sub(c.waitStart)

	grace, deadline := c.cfg.TxWaitGrace, c.cfg.TxWaitDeadline
	if elapsed >= deadline {
		c.logger.Warn("missing transactions never arrived, dropping block", "hash", c.currentBlock.Hash, "missing", len(c.pendingTxs))
		c.chain.RemoveBlock(c.currentBlock.Hash)
		c.transition(Reset)
		return
	}
	if elapsed >= grace && !c.haveAskedForMissingTxs {
		if c.txRequester != nil {
			c.txRequester.RequestTransactions(c.pendingTxs)
		}
		c.haveAskedForMissingTxs = true
	}
	// else: stay in WAIT_FOR_TRANSACTIONS, polled again next tick.
}

// doSynergetic invokes the optional synergetic execution hook and
// passes through (spec.md §4.1 SYNERGETIC_EXECUTION /
// NEW_SYNERGETIC_EXECUTION; synergetic execution internals are out of
// scope).
func (c *Coordinator) doSynergetic(forNewBlock bool) {
	block := c.currentBlock
	next := ScheduleBlockExecution
	if forNewBlock {
		block = c.nextBlock
		next = PackNewBlock
	}
	if c.synergetic != nil {
		c.synergetic.Execute(block)
	}
	c.transition(next)
}

// doSchedule calls execution_manager.Execute(block), retrying on a
// future poll if the scheduler reports Busy (spec.md §4.1
// SCHEDULE_BLOCK_EXECUTION / EXECUTE_NEW_BLOCK).
func (c *Coordinator) doSchedule(block *chain.Block, onScheduled State) {
	status := c.exec.Execute(block)
	if status == execmgr.Busy {
		return
	}
	c.scheduledHash = block.Hash
	c.transition(onScheduled)
}

// doWaitForExecution polls the execution manager until it leaves
// ACTIVE (spec.md §4.1 WAIT_FOR_EXECUTION / WAIT_FOR_NEW_BLOCK_EXECUTION).
func (c *Coordinator) doWaitForExecution(forNewBlock bool) {
	switch c.exec.GetState() {
	case execmgr.Active:
		return
	case execmgr.Error, execmgr.Stalled:
		c.errorCount++
		c.logger.Error("execution manager reported failure", "state", c.exec.GetState())
		c.transition(Reset)
		return
	case execmgr.Idle:
		if c.exec.LastProcessedBlock() != c.scheduledHash {
			return
		}
	}

	if forNewBlock {
		b := c.nextBlock
		b.MerkleHash = c.store.CurrentHash()
		c.store.Commit(b.BlockNumber)
		b.UpdateDigest()
		c.exec.SetLastProcessedBlock(b.Hash)
		c.consensus.UpdateCurrentBlock(b)
		c.transition(TransmitBlock)
		return
	}
	c.transition(PostExecBlockValidation)
}

// doPostExecValidation commits on a merkle match or reverts and drops
// the block otherwise (spec.md §4.1 POST_EXEC_BLOCK_VALIDATION).
func (c *Coordinator) doPostExecValidation() {
	b := c.currentBlock
	if c.store.CurrentHash() == b.MerkleHash {
		c.store.Commit(b.BlockNumber)
		c.setLastExecuted(b.Hash)
		c.consensus.UpdateCurrentBlock(b)
		if c.stake != nil {
			c.stake.UpdateCurrentBlock(b.BlockNumber)
		}
		c.transition(Reset)
		return
	}

	c.logger.Error("post-execution merkle mismatch, reverting", "hash", b.Hash, "expected", b.MerkleHash, "got", c.store.CurrentHash())
	c.chain.RemoveBlock(b.Hash)
	if parent, ok := c.chain.GetBlock(b.PreviousHash); ok {
		c.store.RevertToHash(parent.MerkleHash, parent.BlockNumber)
	}
	c.transition(Reset)
}

// doSynchronised is the rest state: it asks consensus whether this
// node should mine now (spec.md §4.1 SYNCHRONISED).
func (c *Coordinator) doSynchronised() {
	if heaviest := c.chain.GetHeaviestBlock(); heaviest != nil && heaviest.Hash != c.LastExecutedBlock() {
		c.transition(Reset)
		return
	}

	proposal := c.consensus.GenerateNextBlock()
	if proposal == nil {
		return
	}

	parent, ok := c.chain.GetBlock(c.LastExecutedBlock())
	if !ok {
		c.logger.Error("last executed block vanished from chain", "hash", c.LastExecutedBlock())
		return
	}
	proposal.PreviousHash = parent.Hash
	proposal.BlockNumber = parent.BlockNumber + 1
	c.nextBlock = proposal
	c.transition(NewSynergeticExecution)
}

// doPackNewBlock fills next_block's slices and recomputes its digest
// (spec.md §4.1 PACK_NEW_BLOCK).
func (c *Coordinator) doPackNewBlock() {
	b := c.nextBlock
	numLanes := uint64(1) << c.cfg.Log2NumLanes
	c.packer.GenerateBlock(b, numLanes, c.cfg.NumSlices, c.chain)
	b.Log2NumLanes = c.cfg.Log2NumLanes
	b.UpdateDigest()
	c.transition(ExecuteNewBlock)
}

// doTransmitBlock adds the newly mined block to the local chain (so it
// becomes this node's own heaviest tip without waiting on a gossip
// round-trip), updates last_executed_block, and hands it to the block
// sink for broadcast (spec.md §4.1 TRANSMIT_BLOCK).
func (c *Coordinator) doTransmitBlock() {
	b := c.nextBlock
	outcome := c.chain.AddBlock(b)
	if outcome == chain.Added {
		c.setLastExecuted(b.Hash)
	} else {
		c.logger.Warn("newly mined block did not become the heaviest tip", "hash", b.Hash, "outcome", outcome)
	}
	c.sink.BroadcastBlock(b)
	c.transition(Reset)
}
