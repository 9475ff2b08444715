package common

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// HashCache is a bounded cache keyed by Hash, used for the chain's
// recent-block lookaside.
// Adapted from the teacher's generic LRU/ARC cache wrapper, narrowed
// to the one key type every caller in this module actually needs.
type HashCache interface {
	Add(key Hash, value interface{})
	Get(key Hash) (value interface{}, ok bool)
	Contains(key Hash) bool
	Remove(key Hash)
	Purge()
	Len() int
}

type lruHashCache struct{ lru *lru.Cache }

// NewLRUHashCache returns a plain least-recently-used cache of size.
func NewLRUHashCache(size int) (HashCache, error) {
	if size <= 0 {
		return nil, errors.Errorf("cache size must be positive, got %d", size)
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruHashCache{c}, nil
}

func (c *lruHashCache) Add(key Hash, value interface{}) { c.lru.Add(key, value) }
func (c *lruHashCache) Get(key Hash) (interface{}, bool) { return c.lru.Get(key) }
func (c *lruHashCache) Contains(key Hash) bool           { return c.lru.Contains(key) }
func (c *lruHashCache) Remove(key Hash)                  { c.lru.Remove(key) }
func (c *lruHashCache) Purge()                           { c.lru.Purge() }
func (c *lruHashCache) Len() int                         { return c.lru.Len() }

type arcHashCache struct{ arc *lru.ARCCache }

// NewARCHashCache returns an adaptive-replacement cache of size,
// matching the teacher's use of hashicorp's ARC implementation for
// the istanbul snapshot lookaside (consensus/istanbul/backend.go).
func NewARCHashCache(size int) (HashCache, error) {
	if size <= 0 {
		return nil, errors.Errorf("cache size must be positive, got %d", size)
	}
	a, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &arcHashCache{a}, nil
}

func (c *arcHashCache) Add(key Hash, value interface{}) { c.arc.Add(key, value) }
func (c *arcHashCache) Get(key Hash) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcHashCache) Contains(key Hash) bool           { return c.arc.Contains(key) }
func (c *arcHashCache) Remove(key Hash)                  { c.arc.Remove(key) }
func (c *arcHashCache) Purge()                           { c.arc.Purge() }
func (c *arcHashCache) Len() int                         { return c.arc.Len() }
