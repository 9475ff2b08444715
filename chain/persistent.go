package chain

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/log"
)

// Backend is the raw key/value persistence layer a persistentChain
// writes every block through to, satisfied structurally by
// storage/memstore's leveldb and badger backends (spec.md §4.4:
// "LOAD_PERSISTENT_DB (production)") without either package importing
// the other.
type Backend interface {
	Get(key []byte) ([]byte, bool)
	Put(key, value []byte)
}

const (
	chainIndexKey      = "chain.index"
	blockKeyPrefix     = "chain.block."
	tombstoneKeyPrefix = "chain.removed."
)

func blockKey(hash common.Hash) []byte     { return []byte(blockKeyPrefix + hash.String()) }
func tombstoneKey(hash common.Hash) []byte { return []byte(tombstoneKeyPrefix + hash.String()) }

// persistentChain embeds a memChain for every live heaviest-tip and
// block-index structure, and mirrors each stored block through to a
// Backend so a restart can rehydrate full chain state (spec.md §4.4
// LOAD_PERSISTENT_DB), matching storage/memstore.Store's own
// backend-plus-in-memory split.
type persistentChain struct {
	*memChain

	// indexMu serializes the persisted index's read-modify-write cycle;
	// memChain.mu alone would not stop two concurrent AddBlock calls
	// from racing on the backend-side index even though the in-memory
	// mutation stays linearizable (spec.md §5).
	indexMu sync.Mutex

	backend Backend
	logger  log.Logger
}

// NewPersistent returns a Chain backed durably by backend: if backend
// already holds a persisted chain (from a prior run), it is replayed
// into memory; otherwise the chain is freshly rooted at genesis and
// immediately persisted (spec.md §4.4).
func NewPersistent(backend Backend, genesis *Block) (Chain, error) {
	pc := &persistentChain{
		memChain: newMemChain(),
		backend:  backend,
		logger:   log.NewModuleLogger(log.Chain),
	}

	recovered, err := pc.recover()
	if err != nil {
		return nil, errors.Wrap(err, "chain: recover persisted chain")
	}
	if recovered {
		return pc, nil
	}

	pc.memChain.seedGenesis(genesis)
	if err := pc.persistBlock(pc.memChain.blocks[pc.memChain.genesis]); err != nil {
		return nil, errors.Wrap(err, "chain: persist genesis block")
	}
	return pc, nil
}

// AddBlock delegates to memChain and mirrors every non-rejected,
// non-duplicate outcome to the backend.
func (pc *persistentChain) AddBlock(b *Block) AddBlockOutcome {
	outcome := pc.memChain.AddBlock(b)
	switch outcome {
	case Added, Loose, Dirty:
		if err := pc.persistBlock(b); err != nil {
			pc.logger.Error("failed to persist block", "hash", b.Hash, "err", err)
		}
	}
	return outcome
}

// RemoveBlock delegates to memChain and tombstones the hash so a later
// recover() does not resurrect it.
func (pc *persistentChain) RemoveBlock(hash common.Hash) bool {
	ok := pc.memChain.RemoveBlock(hash)
	if ok {
		pc.backend.Put(tombstoneKey(hash), []byte{1})
	}
	return ok
}

// persistBlock writes b's body and appends its hash to the persisted
// index, the minimal bookkeeping recover needs to replay the full set
// of stored blocks in the order they were first seen.
func (pc *persistentChain) persistBlock(b *Block) error {
	blob, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshal block")
	}
	pc.backend.Put(blockKey(b.Hash), blob)

	pc.indexMu.Lock()
	defer pc.indexMu.Unlock()

	idx, _ := pc.loadIndex()
	idx = append(idx, b.Hash)
	idxBlob, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrap(err, "marshal block index")
	}
	pc.backend.Put([]byte(chainIndexKey), idxBlob)
	return nil
}

func (pc *persistentChain) loadIndex() ([]common.Hash, bool) {
	blob, ok := pc.backend.Get([]byte(chainIndexKey))
	if !ok {
		return nil, false
	}
	var idx []common.Hash
	if err := json.Unmarshal(blob, &idx); err != nil {
		return nil, false
	}
	return idx, true
}

func (pc *persistentChain) isTombstoned(hash common.Hash) bool {
	_, ok := pc.backend.Get(tombstoneKey(hash))
	return ok
}

// recover replays a previously persisted chain into pc.memChain,
// reporting false (with no error) when the backend is empty, i.e. this
// is a fresh genesis.
func (pc *persistentChain) recover() (bool, error) {
	idx, ok := pc.loadIndex()
	if !ok || len(idx) == 0 {
		return false, nil
	}

	genesisBlob, ok := pc.backend.Get(blockKey(idx[0]))
	if !ok {
		return false, errors.Errorf("persisted index references missing genesis block %s", idx[0])
	}
	var genesis Block
	if err := json.Unmarshal(genesisBlob, &genesis); err != nil {
		return false, errors.Wrap(err, "unmarshal genesis block")
	}
	pc.memChain.seedGenesis(&genesis)

	for _, h := range idx[1:] {
		if pc.isTombstoned(h) {
			continue
		}
		blob, ok := pc.backend.Get(blockKey(h))
		if !ok {
			continue
		}
		var b Block
		if err := json.Unmarshal(blob, &b); err != nil {
			return false, errors.Wrap(err, "unmarshal persisted block")
		}
		pc.memChain.AddBlock(&b)
	}
	return true, nil
}

var _ Chain = (*persistentChain)(nil)
