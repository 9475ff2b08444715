package chainsync

import (
	"sync"

	"github.com/fetchai/ledger-sub006/chain"
)

// PromiseStatus is the outcome an in-flight RPC promise reports to a
// polling caller (spec.md §4.2 WAIT_FOR_NEXT_BLOCKS).
type PromiseStatus uint8

const (
	Waiting PromiseStatus = iota
	Success
	Failed
	TimedOut
)

// Promise is a single-result future an RPCClient hands back
// immediately, resolved later (typically from an I/O worker thread)
// once the network round-trip completes. Cooperative pollers never
// block on it; they call Poll repeatedly (spec.md §5: "no state
// transition blocks on I/O inline... polled").
type Promise struct {
	mu     sync.Mutex
	status PromiseStatus
	result chain.Travelogue
}

// NewPromise returns a pending Promise.
func NewPromise() *Promise {
	return &Promise{status: Waiting}
}

// Resolve marks the promise successful with result.
func (p *Promise) Resolve(result chain.Travelogue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == Waiting {
		p.status = Success
		p.result = result
	}
}

// Fail marks the promise failed (a transport error, not a protocol
// NOT_FOUND, which is carried as a successful Travelogue).
func (p *Promise) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == Waiting {
		p.status = Failed
	}
}

// TimeoutIfPending marks the promise TimedOut if still Waiting. The
// Service does not call it and sets no deadline on a pending request;
// when a promise does report TimedOut, WAIT_FOR_NEXT_BLOCKS handles it
// the same way as Failed.
func (p *Promise) TimeoutIfPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == Waiting {
		p.status = TimedOut
	}
}

// Poll returns the promise's current status and, when Success, the
// resolved Travelogue.
func (p *Promise) Poll() (PromiseStatus, chain.Travelogue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.result
}
