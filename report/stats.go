// Package report implements the Reporter of spec.md §4.6: per-cycle
// functional-unit activity vectors, aggregate load/store/DMA counters,
// derived energy, and the fixed set of output files spec.md §6 names.
package report

import (
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// CycleActivity is one cycle's functional-unit occupancy: how many
// nodes of each microop class held a unit that cycle. A multicycle
// multiply occupies its class every cycle of its latency, not just on
// the cycle it completes, which is why this is built from the
// Scheduler's "active" snapshot rather than its "completed" list.
type CycleActivity struct {
	Cycle  int64
	Counts map[node.Microop]int
}

// Stats accumulates the Reporter's per-cycle activity log and aggregate
// counters across one scheduler run.
type Stats struct {
	Benchmark string

	Activity    []CycleActivity
	TotalCycles int64

	Loads    int
	Stores   int
	DMABytes int64

	arrayLoads  map[string]int
	arrayStores map[string]int
}

// NewStats creates an empty Stats for the named benchmark.
func NewStats(benchmark string) *Stats {
	return &Stats{
		Benchmark:   benchmark,
		arrayLoads:  make(map[string]int),
		arrayStores: make(map[string]int),
	}
}

// Observe returns a function suitable for Scheduler.OnCycle: it
// resolves each active node id's microop through g and appends one
// CycleActivity per call.
func (s *Stats) Observe(g *graph.Graph) func(cycle int64, active, completed []node.ID) {
	return func(cycle int64, active, completed []node.ID) {
		counts := make(map[node.Microop]int, len(active))
		for _, id := range active {
			counts[g.Node(id).Microop]++
		}
		s.Activity = append(s.Activity, CycleActivity{Cycle: cycle, Counts: counts})
	}
}

// Collect finishes assembling a Stats after a run completes: g must
// have every reachable node scheduled, bindings holds the final
// per-array access counters, and totalCycles is the Scheduler's final
// Cycle() value. Aggregate load/store counts come from the bindings
// (spec.md §4.6's "aggregate counts"); DMA byte totals are read back
// from the DMA-microop nodes themselves, since no other component
// tracks bytes moved.
func Collect(s *Stats, g *graph.Graph, bindings *membind.Table, totalCycles int64) {
	s.TotalCycles = totalCycles

	for _, array := range bindings.Arrays() {
		b, ok := bindings.Lookup(array)
		if !ok {
			continue
		}
		s.Loads += b.LoadCount()
		s.Stores += b.StoreCount()
		s.arrayLoads[array] = b.LoadCount()
		s.arrayStores[array] = b.StoreCount()
	}

	for _, n := range g.Nodes() {
		if n.Mem == nil {
			continue
		}
		if n.Microop == node.OpDMALoad || n.Microop == node.OpDMAStore {
			s.DMABytes += int64(n.Mem.SizeBit / 8)
		}
	}
}

// ArrayLoads and ArrayStores return the per-array cumulative access
// counts collected by Collect, in no particular order.
func (s *Stats) ArrayLoads() map[string]int  { return s.arrayLoads }
func (s *Stats) ArrayStores() map[string]int { return s.arrayStores }

// ActivationsByOp sums activity counts across every cycle, per microop
// class — the Reporter's "total times this functional-unit class fired"
// figure, and the basis for DeriveEnergy's dynamic-energy sum.
func (s *Stats) ActivationsByOp() map[node.Microop]int {
	totals := make(map[node.Microop]int)
	for _, cyc := range s.Activity {
		for op, count := range cyc.Counts {
			totals[op] += count
		}
	}
	return totals
}
