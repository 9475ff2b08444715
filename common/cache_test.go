package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLRUHashCache_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewLRUHashCache(0)
	assert.Error(t, err)
}

func TestLRUHashCache_EvictsOldestOnOverflow(t *testing.T) {
	c, err := NewLRUHashCache(2)
	require.NoError(t, err)

	h1, h2, h3 := BytesToHash([]byte{1}), BytesToHash([]byte{2}), BytesToHash([]byte{3})
	c.Add(h1, "one")
	c.Add(h2, "two")
	c.Add(h3, "three")

	assert.False(t, c.Contains(h1), "oldest entry should have been evicted")
	assert.True(t, c.Contains(h2))
	assert.True(t, c.Contains(h3))
	assert.Equal(t, 2, c.Len())
}

func TestLRUHashCache_RemoveAndPurge(t *testing.T) {
	c, err := NewLRUHashCache(4)
	require.NoError(t, err)

	h := BytesToHash([]byte{9})
	c.Add(h, "value")
	c.Remove(h)
	assert.False(t, c.Contains(h))

	c.Add(h, "value")
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNewARCHashCache_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewARCHashCache(-1)
	assert.Error(t, err)
}

func TestARCHashCache_AddGet(t *testing.T) {
	c, err := NewARCHashCache(4)
	require.NoError(t, err)

	h := BytesToHash([]byte{5})
	c.Add(h, 42)

	v, ok := c.Get(h)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}
