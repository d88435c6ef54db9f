// Package memif implements the external-memory collaborator of spec.md
// §6/§9: the six-method interface the scheduler delegates Cache- and
// DMA-bound memory nodes to, plus two implementations — an in-process
// Mock for unit tests and an akita-backed Simulated for integration
// tests against a real timed memory model.
package memif

import "github.com/sarchlab/aladdin/node"

// CompletionFunc is invoked once per outstanding request, exactly once,
// either with a nil error on success or a non-nil error if the request
// ultimately failed. The scheduler is the only registered listener; it
// retires the request from its own pending-request map from inside this
// callback (spec.md §5: "a request is retired only when the external
// interface calls the completion callback").
type CompletionFunc func(id node.ID, err error)

// MemoryInterface is the trait of spec.md §6: issue a DMA or cache
// transfer, translate a virtual address, and signal completions through
// a registered callback. Implementations are driven cooperatively —
// Tick advances whatever internal timing model the implementation keeps
// by one scheduler cycle, and the scheduler calls it once per
// Scheduler.Step. Mock counts its latencies down on Tick; Simulated's
// Tick does nothing.
type MemoryInterface interface {
	// IssueDMA starts a DMA transfer for a node; completion (or failure)
	// is reported later through the registered CompletionFunc.
	IssueDMA(id node.ID, vaddr uint64, size int, isLoad bool) error

	// IssueCache starts a cache-mediated access for a node. value is the
	// data to write for a store; ignored for a load.
	IssueCache(id node.ID, vaddr, paddr uint64, size int, isLoad bool, value uint64) error

	// Translate resolves a virtual address through the TLB model,
	// returning the physical address and the hit latency in cycles.
	Translate(vaddr uint64, size int, isLoad bool) (paddr uint64, hitLatency int, err error)

	// OnCompletion registers the callback invoked for every request this
	// interface ever issues. Only one callback is supported — the
	// scheduler that owns this interface.
	OnCompletion(fn CompletionFunc)

	// Tick advances the interface's internal timing model by one
	// scheduler cycle, firing any completions whose latency has elapsed.
	Tick()

	// Pending reports the number of requests still in flight, so the
	// scheduler's "finished" check can include outstanding memory work.
	Pending() int
}
