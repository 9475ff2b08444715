package genesis

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchai/ledger-sub006/common"
	"github.com/fetchai/ledger-sub006/storage/memstore"
)

func rawFile(t *testing.T, version int, balance, stake uint64) []byte {
	t.Helper()
	a := common.BytesToAddress([]byte{1})
	identity := base64.StdEncoding.EncodeToString(a[:])
	f := map[string]interface{}{
		"version": version,
		"accounts": []map[string]interface{}{
			{"address": common.BytesToAddress([]byte{1}).String(), "balance": balance, "stake": stake},
		},
		"consensus": map[string]interface{}{
			"cabinetSize": 1,
			"startTime":   1000,
			"stakers":     []map[string]interface{}{{"identity": identity, "amount": stake}},
		},
	}
	blob, err := json.Marshal(f)
	require.NoError(t, err)
	return blob
}

func TestParse_RejectsUnsupportedVersion(t *testing.T) {
	_, err := Parse(rawFile(t, 3, 1, 1))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParse_RejectsIssuanceAboveTotalSupply(t *testing.T) {
	_, err := Parse(rawFile(t, 4, TotalSupply, 1))
	assert.ErrorIs(t, err, ErrIssuanceExceedsSupply)
}

func TestParse_AcceptsValidFile(t *testing.T) {
	f, err := Parse(rawFile(t, 4, 100, 50))
	require.NoError(t, err)
	assert.Len(t, f.Accounts, 1)
	assert.Len(t, f.Consensus.Stakers, 1)
}

func TestStakeSnapshot_DecodesBase64Identities(t *testing.T) {
	f, err := Parse(rawFile(t, 4, 100, 50))
	require.NoError(t, err)

	snap, err := f.StakeSnapshot()
	require.NoError(t, err)
	require.Equal(t, 1, snap.Size())
	assert.Equal(t, common.BytesToAddress([]byte{1}), snap.Records()[0].Identity)
}

func TestLoadOrCreateHead_CachesAcrossCalls(t *testing.T) {
	f, err := Parse(rawFile(t, 4, 100, 50))
	require.NoError(t, err)

	store := memstore.New(memstore.NewMemBackend())

	hash1, root1, err := LoadOrCreateHead(store, f)
	require.NoError(t, err)

	hash2, root2, err := LoadOrCreateHead(store, f)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.Equal(t, root1, root2)
}
