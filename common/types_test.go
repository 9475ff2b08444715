package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_JSONRoundTrips(t *testing.T) {
	a := BytesToAddress([]byte{1, 2, 3})

	blob, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"`+a.String()+`"`, string(blob))

	var decoded Address
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, a, decoded)
}

func TestAddress_UnmarshalText_RejectsOversizedValue(t *testing.T) {
	var a Address
	err := a.UnmarshalText([]byte("0x" + "00112233445566778899aabbccddeeff0011223344"))
	assert.Error(t, err)
}

func TestHash_JSONRoundTrips(t *testing.T) {
	h := BytesToHash([]byte("some content to hash into 32 bytes!"))

	blob, err := json.Marshal(h)
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, h, decoded)
}
