package passes

import (
	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// MemoryAmbiguation serializes stores whose destination address cannot be
// proven distinct from a later store's (pass 2 of spec.md §4.4).
//
// dddg's trackMemory already chains a store to the prior store at the
// exact same runtime vaddr via a MemoryEdge, since the trace gives exact
// addresses. What that misses is the indirect-write case spec.md's
// memory-ambiguation scenario names: result[input[j]] = ..., where
// consecutive dynamic stores write different concrete addresses (input[j]
// varies) yet the compiler cannot prove they never alias, so hardware
// synthesis must serialize them anyway. This pass detects "indirect": a
// store whose address-producing register-edge ancestry passes through a
// Load. Every pair of consecutive indirect stores (in node-id/program
// order) is conservatively serialized with a MemoryEdge, independent of
// their concrete vaddr.
func MemoryAmbiguation(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	havePrev := false
	var prev node.ID

	for _, v := range g.Nodes() {
		if v.Microop != node.OpStore {
			continue
		}
		if !isIndirectStore(g, v.ID) {
			continue
		}
		if havePrev {
			g.AddEdge(prev, v.ID, graph.MemoryEdge)
		}
		prev, havePrev = v.ID, true
	}
	return nil
}

// isIndirectStore walks a store's register-edge ancestry looking for a
// Load. This over-approximates (it does not distinguish the stored value
// operand from the pointer operand), which matches Aladdin's conservative
// aliasing stance: a spurious serialization costs a cycle, a missed one
// corrupts the schedule.
func isIndirectStore(g *graph.Graph, store node.ID) bool {
	visited := make(map[node.ID]bool)
	stack := ancestorsOf(g, store)

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[v] {
			continue
		}
		visited[v] = true
		if g.Node(v).Microop == node.OpLoad {
			return true
		}
		stack = append(stack, ancestorsOf(g, v)...)
	}
	return false
}

func ancestorsOf(g *graph.Graph, v node.ID) []node.ID {
	var out []node.ID
	for _, e := range g.InEdges(v) {
		if e.Param >= 0 {
			out = append(out, e.From)
		}
	}
	return out
}

// RemoveSharedLoads dedupes repeated loads of the same address within an
// unrolled iteration (pass 9 of spec.md §4.4): the second of two Loads at
// the same vaddr with no intervening Store is isolated and its consumers
// redirected to the first. A Store to that address invalidates the
// tracked entry, since a later Load must re-read memory, and so does
// every loop-bound marker.
func RemoveSharedLoads(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	loopBoundAt := make(map[node.ID]bool, len(g.LoopBounds))
	for _, lb := range g.LoopBounds {
		loopBoundAt[lb.Node] = true
	}

	lastLoad := make(map[uint64]node.ID)

	for _, v := range g.Nodes() {
		if loopBoundAt[v.ID] {
			lastLoad = make(map[uint64]node.ID)
		}
		switch {
		case v.Microop == node.OpStore && v.Mem != nil:
			delete(lastLoad, v.Mem.Vaddr)
		case v.Microop == node.OpLoad && v.Mem != nil:
			if prior, ok := lastLoad[v.Mem.Vaddr]; ok && prior != v.ID {
				redirectConsumers(g, v.ID, prior)
			} else {
				lastLoad[v.Mem.Vaddr] = v.ID
			}
		}
	}
	return nil
}

// StoreBuffer forwards a stored value directly to a later Load of the
// same address within the same iteration (pass 10 of spec.md §4.4,
// store-to-load forwarding). Per the recorded Open Question decision,
// forwarding is restricted to an exact vaddr match with no intervening
// Store or loop-bound marker between the two — crossing an iteration
// boundary would forward a value the hardware's scratchpad banking may
// not actually preserve across iterations.
func StoreBuffer(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	loopBoundAt := make(map[node.ID]bool, len(g.LoopBounds))
	for _, lb := range g.LoopBounds {
		loopBoundAt[lb.Node] = true
	}

	lastStore := make(map[uint64]node.ID)

	for _, v := range g.Nodes() {
		if loopBoundAt[v.ID] {
			lastStore = make(map[uint64]node.ID)
		}
		switch {
		case v.Microop == node.OpStore && v.Mem != nil:
			lastStore[v.Mem.Vaddr] = v.ID
		case v.Microop == node.OpLoad && v.Mem != nil:
			if storeID, ok := lastStore[v.Mem.Vaddr]; ok {
				if value, ok := storeValueProducer(g, storeID); ok {
					redirectConsumers(g, v.ID, value)
				}
			}
		}
	}
	return nil
}

// storeValueProducer returns the register-edge producer that supplied a
// store's stored value: LLVM's "store value, ptr" places the value at
// slot 1.
func storeValueProducer(g *graph.Graph, store node.ID) (node.ID, bool) {
	for _, e := range g.InEdges(store) {
		if e.Param == 1 {
			return e.From, true
		}
	}
	return 0, false
}

// RemoveRepeatedStores isolates the earlier of two stores to the same
// address within an iteration when no Load reads that address between
// them (pass 11 of spec.md §4.4): the earlier write is dead. A Load at
// that address invalidates the tracked entry, since the value was
// observed and the later store is no longer a pure overwrite. Every
// loop-bound marker clears the tracked entries as well.
func RemoveRepeatedStores(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	loopBoundAt := make(map[node.ID]bool, len(g.LoopBounds))
	for _, lb := range g.LoopBounds {
		loopBoundAt[lb.Node] = true
	}

	lastStore := make(map[uint64]node.ID)

	for _, v := range g.Nodes() {
		if loopBoundAt[v.ID] {
			lastStore = make(map[uint64]node.ID)
		}
		switch {
		case v.Microop == node.OpLoad && v.Mem != nil:
			delete(lastStore, v.Mem.Vaddr)
		case v.Microop == node.OpStore && v.Mem != nil:
			if prior, ok := lastStore[v.Mem.Vaddr]; ok && prior != v.ID {
				g.IsolateNode(prior)
			}
			lastStore[v.Mem.Vaddr] = v.ID
		}
	}
	return nil
}
