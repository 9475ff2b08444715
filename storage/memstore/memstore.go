// Package memstore is a reference implementation of storage.Store,
// used by this module's own tests to drive the Block Coordinator
// end-to-end (spec.md §8 scenarios). It is not the production storage
// engine (out of scope per spec.md §1) — it trades a real Merkle trie
// for a flat KV map content-hashed on Commit, but honors the same
// Commit/HashExists/RevertToHash contract so the coordinator cannot
// tell the difference. Backing KV storage is pluggable (in-memory,
// leveldb, badger), mirroring the teacher's dual-backend DBManager
// (storage/database/{leveldb_database,badger_database}.go).
package memstore

import (
	"sort"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/log"
	"github.com/fetchai/ledger-sub006/storage"
)

// Backend is the raw key/value persistence layer underneath Store.
type Backend interface {
	Get(key []byte) ([]byte, bool)
	Put(key, value []byte)
	Snapshot() map[string][]byte
	Restore(snapshot map[string][]byte)
}

// memBackend is the default, dependency-free Backend.
type memBackend struct {
	data map[string][]byte
}

// NewMemBackend returns an empty in-memory Backend.
func NewMemBackend() Backend {
	return &memBackend{data: make(map[string][]byte)}
}

func (b *memBackend) Get(key []byte) ([]byte, bool) {
	v, ok := b.data[string(key)]
	return v, ok
}

func (b *memBackend) Put(key, value []byte) {
	b.data[string(key)] = append([]byte(nil), value...)
}

func (b *memBackend) Snapshot() map[string][]byte {
	cp := make(map[string][]byte, len(b.data))
	for k, v := range b.data {
		cp[k] = append([]byte(nil), v...)
	}
	return cp
}

func (b *memBackend) Restore(snapshot map[string][]byte) {
	b.data = make(map[string][]byte, len(snapshot))
	for k, v := range snapshot {
		b.data[k] = append([]byte(nil), v...)
	}
}

type commitKey struct {
	hash        common.Hash
	blockNumber uint64
}

// Store is the Store implementation backed by a Backend.
type Store struct {
	mu sync.RWMutex

	backend Backend
	pending map[string][]byte

	current    common.Hash
	lastCommit common.Hash

	committed map[commitKey]bool
	snapshots map[common.Hash]map[string][]byte

	logger log.Logger
}

// New returns an empty Store over backend.
func New(backend Backend) *Store {
	s := &Store{
		backend:   backend,
		pending:   make(map[string][]byte),
		committed: make(map[commitKey]bool),
		snapshots: make(map[common.Hash]map[string][]byte),
		logger:    log.NewModuleLogger(log.Storage),
	}
	s.recomputeCurrent()
	return s
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Get(address common.Hash) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.pending[string(address[:])]; ok {
		return v, true
	}
	return s.backend.Get(address[:])
}

func (s *Store) Set(address common.Hash, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[string(address[:])] = append([]byte(nil), value...)
	s.recomputeCurrent()
}

func (s *Store) CurrentHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) LastCommitHash() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCommit
}

// recomputeCurrent content-hashes the merged backend+pending state.
// Must be called with s.mu held.
func (s *Store) recomputeCurrent() {
	merged := s.backend.Snapshot()
	for k, v := range s.pending {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha3.NewLegacyKeccak256()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(merged[k])
	}
	s.current = common.BytesToHash(h.Sum(nil))
}

// Commit merges pending writes into the backend, content-hashes the
// result, and records it as committed at blockNumber (spec.md §3).
func (s *Store) Commit(blockNumber uint64) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.pending {
		s.backend.Put([]byte(k), v)
	}
	s.pending = make(map[string][]byte)
	s.recomputeCurrent()

	s.lastCommit = s.current
	s.committed[commitKey{s.current, blockNumber}] = true
	s.snapshots[s.current] = s.backend.Snapshot()

	s.logger.Debug("committed state", "hash", s.current, "blockNumber", blockNumber)
	return s.current
}

func (s *Store) HashExists(hash common.Hash, blockNumber uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed[commitKey{hash, blockNumber}]
}

// RevertToHash pins the store to a previously committed root,
// discarding any uncommitted mutations. Fails if hash was never
// committed at blockNumber (spec.md §3).
func (s *Store) RevertToHash(hash common.Hash, blockNumber uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.committed[commitKey{hash, blockNumber}] {
		return false
	}
	snap, ok := s.snapshots[hash]
	if !ok {
		return false
	}
	s.backend.Restore(snap)
	s.pending = make(map[string][]byte)
	s.current = hash
	s.lastCommit = hash
	return true
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.Restore(map[string][]byte{})
	s.pending = make(map[string][]byte)
	s.committed = make(map[commitKey]bool)
	s.snapshots = make(map[common.Hash]map[string][]byte)
	s.recomputeCurrent()
	s.lastCommit = s.current
}
