// Package common holds the small value types (Hash, Address) shared by
// the chain, consensus, and storage packages, and the generic
// bounded-cache abstraction behind the chain's recent-block lookaside,
// in the teacher's style: plain structs with a
// handful of helpers rather than a heavyweight "kernel" package.
package common

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// HashLength is the width in bytes of a content hash (Keccak-256).
const HashLength = 32

// AddressLength is the width in bytes of an identity.
const AddressLength = 20

// Hash is a content digest: a block hash, a merkle root, or a
// transaction digest.
type Hash [HashLength]byte

// ZeroHash is the previous_hash of a genesis block.
var ZeroHash = Hash{}

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) Bytes() []byte {
	b := make([]byte, HashLength)
	copy(b, h[:])
	return b
}

// Less orders hashes lexicographically, used to break total-weight
// ties when selecting the heaviest chain tip (spec.md §3).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// MarshalText renders h as a 0x-prefixed hex string, matching the
// teacher's common.Hash JSON representation.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText parses a 0x-prefixed hex string into h.
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := decodeHexText(text, HashLength)
	if err != nil {
		return errors.Wrap(err, "common: decode Hash")
	}
	*h = BytesToHash(b)
	return nil
}

// BytesToHash left-pads/truncates b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Address identifies a block producer, staker, or cabinet member.
type Address [AddressLength]byte

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// MarshalText renders a as a 0x-prefixed hex string, matching the
// teacher's common.Address JSON representation.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText parses a 0x-prefixed hex string into a.
func (a *Address) UnmarshalText(text []byte) error {
	b, err := decodeHexText(text, AddressLength)
	if err != nil {
		return errors.Wrap(err, "common: decode Address")
	}
	*a = BytesToAddress(b)
	return nil
}

// decodeHexText decodes an optionally 0x-prefixed hex string, rejecting
// input wider than width bytes (a truncating BytesToHash/BytesToAddress
// would otherwise silently accept a too-long value).
func decodeHexText(text []byte, width int) ([]byte, error) {
	s := strings.TrimPrefix(string(text), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) > width {
		return nil, errors.Errorf("value is %d bytes wide, expected at most %d", len(b), width)
	}
	return b, nil
}

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// AddressesByIdentity sorts a slice of addresses, used wherever the
// spec requires "identity-sorted order" (stake snapshot, cabinet
// selection).
type AddressesByIdentity []Address

func (a AddressesByIdentity) Len() int      { return len(a) }
func (a AddressesByIdentity) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a AddressesByIdentity) Less(i, j int) bool {
	for k := range a[i] {
		if a[i][k] != a[j][k] {
			return a[i][k] < a[j][k]
		}
	}
	return false
}

func (a Address) GoString() string { return fmt.Sprintf("Address(%s)", a.String()) }
