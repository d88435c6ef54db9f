package memif

import "github.com/sarchlab/aladdin/node"

// inflight is one outstanding request tracked by Mock.
type inflight struct {
	id            node.ID
	remainingTick int
	fail          bool
}

// Mock is a synchronous, in-process MemoryInterface for unit tests. Every
// issued request completes after a fixed, configurable latency measured in
// Tick calls; FailNext makes the next N requests fail instead, to exercise
// the scheduler's retry-then-escalate path (spec.md §7).
type Mock struct {
	DMALatency   int
	CacheLatency int
	HitLatency   int

	requests []inflight
	onDone   CompletionFunc
	failNext int
}

// NewMock returns a Mock with the modest fixed latencies a unit test
// typically wants: cheap enough to finish in a handful of Tick calls.
func NewMock() *Mock {
	return &Mock{DMALatency: 4, CacheLatency: 2, HitLatency: 1}
}

// FailNext arranges for the next n issued requests to report failure
// instead of completing normally.
func (m *Mock) FailNext(n int) { m.failNext += n }

func (m *Mock) issue(id node.ID, latency int) error {
	fail := false
	if m.failNext > 0 {
		m.failNext--
		fail = true
	}
	m.requests = append(m.requests, inflight{id: id, remainingTick: latency, fail: fail})
	return nil
}

// IssueDMA implements MemoryInterface.
func (m *Mock) IssueDMA(id node.ID, _ uint64, _ int, _ bool) error {
	return m.issue(id, m.DMALatency)
}

// IssueCache implements MemoryInterface.
func (m *Mock) IssueCache(id node.ID, _, _ uint64, _ int, _ bool, _ uint64) error {
	return m.issue(id, m.CacheLatency)
}

// Translate implements MemoryInterface with an always-hit identity map.
func (m *Mock) Translate(vaddr uint64, _ int, _ bool) (uint64, int, error) {
	return vaddr, m.HitLatency, nil
}

// OnCompletion implements MemoryInterface.
func (m *Mock) OnCompletion(fn CompletionFunc) { m.onDone = fn }

// Tick implements MemoryInterface: every outstanding request's remaining
// latency is decremented once; requests reaching zero fire the completion
// callback and are removed.
func (m *Mock) Tick() {
	live := m.requests[:0]
	for _, r := range m.requests {
		r.remainingTick--
		if r.remainingTick > 0 {
			live = append(live, r)
			continue
		}
		if m.onDone != nil {
			if r.fail {
				m.onDone(r.id, errMockFailure{id: r.id})
			} else {
				m.onDone(r.id, nil)
			}
		}
	}
	m.requests = live
}

// Pending implements MemoryInterface.
func (m *Mock) Pending() int { return len(m.requests) }

type errMockFailure struct{ id node.ID }

func (e errMockFailure) Error() string { return "mock memory request failed" }
