package chain

import "github.com/fetchai/ledger-sub006/common"

// TravelogueStatus is the outcome of a TimeTravel walk (spec.md §4.4).
type TravelogueStatus uint8

const (
	TravelogueOK TravelogueStatus = iota
	TravelogueNotFound
)

// Travelogue is the reply of the TimeTravel RPC: the server's own
// chain walked forward from a reference hash, oldest first, plus its
// current heaviest tip (spec.md §6).
type Travelogue struct {
	Status       TravelogueStatus
	Blocks       []*Block
	HeaviestHash common.Hash
	BlockNumber  uint64
}
