package memif

import (
	"testing"

	"github.com/sarchlab/aladdin/node"
)

func TestMockCompletesAfterConfiguredLatency(t *testing.T) {
	m := NewMock()
	m.DMALatency = 3

	var gotErr error
	done := false
	m.OnCompletion(func(id node.ID, err error) {
		if id != 7 {
			t.Fatalf("completion for wrong id: %d", id)
		}
		done = true
		gotErr = err
	})

	if err := m.IssueDMA(7, 0x100, 4, true); err != nil {
		t.Fatalf("IssueDMA: %v", err)
	}

	for i := 0; i < 2; i++ {
		m.Tick()
		if done {
			t.Fatalf("completed too early, after %d ticks", i+1)
		}
	}
	m.Tick()
	if !done {
		t.Fatalf("did not complete after %d ticks", m.DMALatency)
	}
	if gotErr != nil {
		t.Fatalf("unexpected completion error: %v", gotErr)
	}
}

func TestMockFailNextReportsError(t *testing.T) {
	m := NewMock()
	m.CacheLatency = 1
	m.FailNext(1)

	var gotErr error
	m.OnCompletion(func(_ node.ID, err error) { gotErr = err })

	if err := m.IssueCache(1, 0x10, 0x10, 4, true, 0); err != nil {
		t.Fatalf("IssueCache: %v", err)
	}
	m.Tick()
	if gotErr == nil {
		t.Fatalf("expected a failure from the configured FailNext(1)")
	}
}

func TestMockPendingTracksOutstandingRequests(t *testing.T) {
	m := NewMock()
	m.DMALatency = 2
	m.OnCompletion(func(node.ID, error) {})

	if err := m.IssueDMA(1, 0, 4, true); err != nil {
		t.Fatalf("IssueDMA: %v", err)
	}
	if err := m.IssueDMA(2, 4, 4, true); err != nil {
		t.Fatalf("IssueDMA: %v", err)
	}
	if m.Pending() != 2 {
		t.Fatalf("expected 2 pending requests, got %d", m.Pending())
	}
	m.Tick()
	m.Tick()
	if m.Pending() != 0 {
		t.Fatalf("expected 0 pending requests after latency elapsed, got %d", m.Pending())
	}
}
