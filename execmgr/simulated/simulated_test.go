package simulated

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/execmgr"
	"github.com/fetchai/ledger-sub006/storage"
	"github.com/fetchai/ledger-sub006/storage/memstore"
)

func waitForState(t *testing.T, m *Manager, want execmgr.State, limit time.Duration) {
	t.Helper()
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if m.GetState() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %s, last seen %s", want, m.GetState())
}

func TestManager_ExecuteAppliesBlockAndGoesIdle(t *testing.T) {
	store := memstore.New(memstore.NewMemBackend())
	applied := make(chan *chain.Block, 1)
	apply := func(s storage.Store, b *chain.Block) error {
		s.Set(common.BytesToHash([]byte("touched")), []byte{1})
		applied <- b
		return nil
	}
	m := New(store, apply)

	b := &chain.Block{BlockNumber: 1}
	b.UpdateDigest()

	status := m.Execute(b)
	require.Equal(t, execmgr.Scheduled, status)

	select {
	case got := <-applied:
		assert.Equal(t, b.Hash, got.Hash)
	case <-time.After(time.Second):
		t.Fatal("apply was never invoked")
	}

	waitForState(t, m, execmgr.Idle, time.Second)
	assert.Equal(t, b.Hash, m.LastProcessedBlock())
	_, ok := store.Get(common.BytesToHash([]byte("touched")))
	assert.True(t, ok)
}

func TestManager_ExecuteReportsBusyWhileAlreadyRunning(t *testing.T) {
	store := memstore.New(memstore.NewMemBackend())
	release := make(chan struct{})
	apply := func(s storage.Store, b *chain.Block) error {
		<-release
		return nil
	}
	m := New(store, apply)

	b1 := &chain.Block{BlockNumber: 1}
	b1.UpdateDigest()
	require.Equal(t, execmgr.Scheduled, m.Execute(b1))

	b2 := &chain.Block{BlockNumber: 2}
	b2.UpdateDigest()
	assert.Equal(t, execmgr.Busy, m.Execute(b2), "a second Execute while the first is in flight must be rejected")

	close(release)
	waitForState(t, m, execmgr.Idle, time.Second)
}

func TestManager_ExecuteReportsErrorStateOnApplyFailure(t *testing.T) {
	store := memstore.New(memstore.NewMemBackend())
	apply := func(s storage.Store, b *chain.Block) error {
		return errors.New("boom")
	}
	m := New(store, apply)

	b := &chain.Block{BlockNumber: 1}
	b.UpdateDigest()
	m.Execute(b)

	waitForState(t, m, execmgr.Error, time.Second)
}

func TestManager_SetLastProcessedBlock_OverridesExternally(t *testing.T) {
	store := memstore.New(memstore.NewMemBackend())
	m := New(store, func(storage.Store, *chain.Block) error { return nil })

	h := common.BytesToHash([]byte{0x42})
	m.SetLastProcessedBlock(h)
	assert.Equal(t, h, m.LastProcessedBlock())
}
