// Package stake implements the stake-based consensus variant: the
// Stake Snapshot (C1), Stake Manager (C2), and the stake Consensus (C3).
// Cabinet derivation is grounded on the teacher's weighted validator
// selection (consensus/istanbul/validator/weighted.go), which seeds a
// math/rand source from a deterministic value and samples without
// replacement.
package stake

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"github.com/fetchai/ledger-sub006/common"
)

// Record is one identity's stake within a Snapshot.
type Record struct {
	Identity common.Address
	Stake    uint64
}

// Snapshot is an immutable identity->stake record set at one point in
// time (spec.md §3 "Stake Snapshot").
type Snapshot struct {
	records    []Record
	totalStake uint64
}

// NewSnapshot builds a Snapshot from records, dropping non-positive
// stakes (spec.md §3: "(identity, stake>0)") and sorting by identity
// so BuildCabinet is a pure function of (snapshot, entropy, k,
// whitelist) regardless of construction order.
func NewSnapshot(records []Record) *Snapshot {
	filtered := make([]Record, 0, len(records))
	var total uint64
	for _, r := range records {
		if r.Stake == 0 {
			continue
		}
		filtered = append(filtered, r)
		total += r.Stake
	}
	sort.Sort(byIdentity(filtered))
	return &Snapshot{records: filtered, totalStake: total}
}

type byIdentity []Record

func (b byIdentity) Len() int      { return len(b) }
func (b byIdentity) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b byIdentity) Less(i, j int) bool {
	return common.AddressesByIdentity{b[i].Identity, b[j].Identity}.Less(0, 1)
}

func (s *Snapshot) TotalStake() uint64 { return s.totalStake }

func (s *Snapshot) Size() int { return len(s.records) }

// Records returns a defensive copy of the identity-sorted record set.
func (s *Snapshot) Records() []Record {
	return append([]Record(nil), s.records...)
}

func containsAddress(set []common.Address, addr common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}

// weightedKey implements Efraimidis-Spirakis weighted sampling without
// replacement: each record's sort key is u^(1/weight) for u drawn
// uniformly from a seeded PRNG; sorting descending by key yields a
// weighted random permutation that is reproducible for a fixed seed.
func weightedKey(rng *rand.Rand, weight uint64) float64 {
	if weight == 0 {
		weight = 1
	}
	u := rng.Float64()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return math.Pow(u, 1.0/float64(weight))
}

// BuildCabinet deterministically derives an ordered cabinet of size k
// from entropy e, restricted to whitelist when non-empty (spec.md §3,
// §8: "BuildCabinet(S, e, k, W) is deterministic (pure function) and
// |result| <= min(k, |S intersect W|)"). Iteration is in
// identity-sorted order, as required, before the weighted draw so two
// nodes computing this from the same inputs always agree.
func BuildCabinet(s *Snapshot, e common.Hash, k int, whitelist []common.Address) []common.Address {
	if k <= 0 || len(s.records) == 0 {
		return nil
	}

	seed := int64(binary.BigEndian.Uint64(e[:8]))
	rng := rand.New(rand.NewSource(seed))

	type keyed struct {
		addr common.Address
		key  float64
	}
	pool := make([]keyed, len(s.records))
	for i, r := range s.records {
		pool[i] = keyed{addr: r.Identity, key: weightedKey(rng, r.Stake)}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].key > pool[j].key })

	restrict := len(whitelist) > 0
	cabinet := make([]common.Address, 0, k)
	for _, p := range pool {
		if restrict && !containsAddress(whitelist, p.addr) {
			continue
		}
		cabinet = append(cabinet, p.addr)
		if len(cabinet) == k {
			break
		}
	}
	return cabinet
}
