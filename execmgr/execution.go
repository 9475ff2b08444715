// Package execmgr declares the execution manager contract (spec.md
// §6). The transaction execution engine itself is out of scope
// (spec.md §1); the Block Coordinator only ever drives it through
// this interface.
package execmgr

import (
	"github.com/fetchai/ledger-sub006/chain"
	"github.com/fetchai/ledger-sub006/common"
)

// State is the execution manager's externally observed status
// (spec.md §3 "Execution status of a block").
type State uint8

const (
	Idle State = iota
	Active
	Stalled
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Stalled:
		return "STALLED"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ScheduleStatus is the result of asking the manager to execute a
// block (spec.md §6).
type ScheduleStatus uint8

const (
	Scheduled ScheduleStatus = iota
	Busy
)

// Manager is the execution manager contract (spec.md §6). The Block
// Coordinator is its only writer (spec.md §4.1).
type Manager interface {
	Execute(block *chain.Block) ScheduleStatus
	GetState() State
	SetLastProcessedBlock(hash common.Hash)
	LastProcessedBlock() common.Hash
}
