package chain

import (
	"sync"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/log"
)

// recentBlockCacheSize bounds the ARC lookaside every memChain (bare or
// persistent) keeps in front of its block map, sized generously past
// any realistic working set of in-flight loose/competing blocks.
const recentBlockCacheSize = 1024

// Mode selects the chain's backing storage, matching the teacher's
// IN_MEMORY_DB / LOAD_PERSISTENT_DB split for DBManager (spec.md §4.4).
type Mode uint8

const (
	InMemoryDB Mode = iota
	LoadPersistentDB
)

// AddBlockOutcome classifies the result of AddBlock (spec.md §3/§8).
type AddBlockOutcome uint8

const (
	// Added means the block was stored and is now on (or became) the
	// heaviest chain.
	Added AddBlockOutcome = iota
	// Loose means the block's parent is not yet known; it is stored
	// but cannot be walked to from genesis until the parent arrives.
	Loose
	// Duplicate means the block's hash was already stored.
	Duplicate
	// Invalid means the block failed a structural check and was never
	// stored.
	Invalid
	// Dirty means the block was stored and is internally consistent,
	// but it extends a branch that is not (and does not become) the
	// heaviest tip — the chain now holds competing tips. Resolved per
	// DESIGN.md's reading of spec.md §3's AddBlock outcome set.
	Dirty
)

func (o AddBlockOutcome) String() string {
	switch o {
	case Added:
		return "ADDED"
	case Loose:
		return "LOOSE"
	case Duplicate:
		return "DUPLICATE"
	case Invalid:
		return "INVALID"
	case Dirty:
		return "DIRTY"
	default:
		return "UNKNOWN"
	}
}

// Chain is the Main Chain contract (C4, spec.md §4.4): a DAG-of-blocks
// store with a single heaviest tip. Implementations must make
// AddBlock/GetBlock/GetHeaviestBlock/RemoveBlock linearizable, since
// the reactor thread and gossip worker threads call them concurrently
// (spec.md §5).
type Chain interface {
	AddBlock(b *Block) AddBlockOutcome
	GetBlock(hash common.Hash) (*Block, bool)
	GetHeaviestBlock() *Block
	RemoveBlock(hash common.Hash) bool
	TimeTravel(from common.Hash) Travelogue
	Genesis() *Block
}

const timeTravelCap = 256

// memChain is the in-memory Chain implementation (Mode == InMemoryDB),
// and is also embedded by persistentChain to supply every live
// heaviest-tip and block-index structure for Mode == LoadPersistentDB
// (spec.md §4.4: "Chain mode may be IN_MEMORY_DB (tests) or
// LOAD_PERSISTENT_DB (production)"); see persistent.go. Modeled on the
// teacher's istanbul backend.snapshot ARC-cached lookups plus its own
// sync.RWMutex-guarded maps.
type memChain struct {
	mu sync.RWMutex

	blocks      map[common.Hash]*Block
	totalWeight map[common.Hash]uint64
	children    map[common.Hash][]common.Hash
	recent      common.HashCache

	genesis  common.Hash
	heaviest common.Hash

	logger log.Logger
}

// newMemChain returns an empty, unrooted memChain. Callers must seed it
// with seedGenesis before using it as a Chain.
func newMemChain() *memChain {
	recent, err := common.NewARCHashCache(recentBlockCacheSize)
	if err != nil {
		// recentBlockCacheSize is a positive constant; this cannot fail.
		panic(err)
	}
	return &memChain{
		blocks:      make(map[common.Hash]*Block),
		totalWeight: make(map[common.Hash]uint64),
		children:    make(map[common.Hash][]common.Hash),
		recent:      recent,
		logger:      log.NewModuleLogger(log.Chain),
	}
}

// seedGenesis roots an empty memChain at genesis. Must be called at
// most once, before any AddBlock.
func (c *memChain) seedGenesis(genesis *Block) {
	if !genesis.IsGenesis() {
		panic("chain: genesis block must have a zero previous hash")
	}
	g := genesis.Clone()
	g.UpdateDigest()
	c.blocks[g.Hash] = g
	c.totalWeight[g.Hash] = g.Weight
	c.recent.Add(g.Hash, g)
	c.genesis = g.Hash
	c.heaviest = g.Hash
}

// NewInMemory returns a Chain rooted at genesis, used in tests and by
// the CLI's in-memory mode; persistentChain builds its block index
// from the same memChain type via newMemChain.
func NewInMemory(genesis *Block) Chain {
	c := newMemChain()
	c.seedGenesis(genesis)
	return c
}

func (c *memChain) Genesis() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.genesis]
}

func (c *memChain) GetBlock(hash common.Hash) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.recent.Get(hash); ok {
		return v.(*Block), true
	}
	b, ok := c.blocks[hash]
	return b, ok
}

func (c *memChain) GetHeaviestBlock() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.heaviest]
}

// AddBlock validates structural invariants, stores the block if valid,
// and recomputes the heaviest tip (spec.md §3).
func (c *memChain) AddBlock(b *Block) AddBlockOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.blocks[b.Hash]; exists {
		return Duplicate
	}

	if b.IsGenesis() {
		// A second genesis-shaped block is never valid in a chain
		// that already has one rooted.
		c.logger.Warn("rejected second genesis block", "hash", b.Hash)
		return Invalid
	}

	parent, haveParent := c.blocks[b.PreviousHash]
	if !haveParent {
		c.blocks[b.Hash] = b
		c.recent.Add(b.Hash, b)
		c.children[b.PreviousHash] = append(c.children[b.PreviousHash], b.Hash)
		c.logger.Debug("block is loose", "hash", b.Hash, "previous", b.PreviousHash)
		return Loose
	}

	if b.BlockNumber != parent.BlockNumber+1 {
		c.logger.Warn("rejected block with inconsistent number", "hash", b.Hash, "number", b.BlockNumber, "parentNumber", parent.BlockNumber)
		return Invalid
	}

	tw := totalWeightAfter(c.totalWeight[parent.Hash], b)
	b.TotalWeight = tw
	c.blocks[b.Hash] = b
	c.recent.Add(b.Hash, b)
	c.totalWeight[b.Hash] = tw
	c.children[b.PreviousHash] = append(c.children[b.PreviousHash], b.Hash)

	// A previously loose child may now resolve transitively; promote
	// total weight along any already-stored descendants.
	c.propagateWeight(b.Hash)

	newHeaviest := c.recomputeHeaviest()
	c.heaviest = newHeaviest
	if newHeaviest == b.Hash {
		return Added
	}
	return Dirty
}

// propagateWeight recomputes TotalWeight for any stored descendants of
// hash whose parent total weight just became known (handles a loose
// child resolving once its parent is added).
func (c *memChain) propagateWeight(hash common.Hash) {
	queue := append([]common.Hash(nil), c.children[hash]...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		child, ok := c.blocks[h]
		if !ok {
			continue
		}
		parentWeight, ok := c.totalWeight[child.PreviousHash]
		if !ok {
			continue
		}
		tw := totalWeightAfter(parentWeight, child)
		child.TotalWeight = tw
		c.totalWeight[h] = tw
		queue = append(queue, c.children[h]...)
	}
}

// recomputeHeaviest walks every stored block and picks the tip of
// maximum total weight, breaking ties by lexicographically smaller
// hash (spec.md §3).
func (c *memChain) recomputeHeaviest() common.Hash {
	best := c.genesis
	bestWeight := c.totalWeight[c.genesis]
	for h, w := range c.totalWeight {
		if w > bestWeight || (w == bestWeight && h.Less(best)) {
			best = h
			bestWeight = w
		}
	}
	return best
}

func (c *memChain) RemoveBlock(hash common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hash == c.genesis {
		return false
	}
	if _, ok := c.blocks[hash]; !ok {
		return false
	}
	delete(c.blocks, hash)
	c.recent.Remove(hash)
	delete(c.totalWeight, hash)
	delete(c.children, hash)
	if c.heaviest == hash {
		c.heaviest = c.recomputeHeaviest()
	}
	return true
}

// TimeTravel returns up to timeTravelCap consecutive blocks along the
// heaviest chain starting immediately after from, oldest first
// (spec.md §4.4/§6).
func (c *memChain) TimeTravel(from common.Hash) Travelogue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.blocks[from]; !ok {
		return Travelogue{Status: TravelogueNotFound}
	}

	heaviest := c.blocks[c.heaviest]

	// Walk the heaviest chain back to from, collecting the path, then
	// reverse it into oldest-first order.
	path := make([]*Block, 0, timeTravelCap)
	cur := heaviest
	for cur != nil && cur.Hash != from {
		path = append(path, cur)
		if cur.IsGenesis() {
			// from is not on the heaviest chain at all.
			return Travelogue{Status: TravelogueNotFound}
		}
		parent, ok := c.blocks[cur.PreviousHash]
		if !ok {
			return Travelogue{Status: TravelogueNotFound}
		}
		cur = parent
	}
	if cur == nil {
		return Travelogue{Status: TravelogueNotFound}
	}

	reversed := make([]*Block, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		reversed = append(reversed, path[i])
	}
	if len(reversed) > timeTravelCap {
		reversed = reversed[:timeTravelCap]
	}

	return Travelogue{
		Status:       TravelogueOK,
		Blocks:       reversed,
		HeaviestHash: heaviest.Hash,
		BlockNumber:  heaviest.BlockNumber,
	}
}
