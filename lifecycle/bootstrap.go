package lifecycle

import (
	"github.com/pkg/errors"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/consensus"
	"github.com/fetchai/ledger-sub006/consensus/stake"
	"github.com/fetchai/ledger-sub006/genesis"
	"github.com/fetchai/ledger-sub006/storage"
)

// Bootstrap sequences the steps that must happen before the reactor is
// ever allowed to poll the coordinator and chain sync service: loading
// (or creating) the cached genesis HEAD, restoring or seeding the
// stake manager, and giving consensus its first look at the chain head.
type Bootstrap struct {
	Store     storage.Store
	Consensus consensus.Contract
	Guard     *Guard
}

// Result is what Bootstrap hands back to the caller wiring up the
// coordinator and chain sync service.
type Result struct {
	Genesis *chain.Block
	Stake   *stake.Manager
}

// Run loads genesis via LoadOrCreateHead, restores a persisted stake
// manager or seeds one from the genesis file's stakers, and calls
// consensus.UpdateCurrentBlock once on the genesis block
// (SPEC_FULL.md §5.1, resolving spec.md §9's initial-update open
// question in favor of calling it here *and* again implicitly from
// POST_EXEC_BLOCK_VALIDATION for each block the coordinator replays
// after RELOAD_STATE — both call sites are kept
// since the spec leaves their relative order unspecified).
func (b *Bootstrap) Run(f *genesis.File) (*Result, error) {
	genesisHash, merkleRoot, err := genesis.LoadOrCreateHead(b.Store, f)
	if err != nil {
		return nil, errors.Wrap(err, "lifecycle: load genesis head")
	}

	g := f.Block()
	g.MerkleHash = merkleRoot
	g.UpdateDigest()
	if g.Hash != genesisHash {
		return nil, errors.New("lifecycle: cached genesis hash does not match derived genesis block")
	}

	mgr, restored, err := stake.LoadPersisted(b.Store)
	if err != nil {
		return nil, errors.Wrap(err, "lifecycle: load persisted stake state")
	}
	if !restored {
		snap, err := f.StakeSnapshot()
		if err != nil {
			return nil, errors.Wrap(err, "lifecycle: build genesis stake snapshot")
		}
		mgr = stake.NewManager(snap)
		if err := mgr.Persist(b.Store); err != nil {
			return nil, errors.Wrap(err, "lifecycle: persist genesis stake snapshot")
		}
	}

	b.Consensus.UpdateCurrentBlock(g)

	if b.Guard != nil {
		b.Guard.Push(func() error {
			return mgr.Persist(b.Store)
		})
	}

	return &Result{Genesis: g, Stake: mgr}, nil
}
