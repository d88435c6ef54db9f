package passes

import (
	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// TreeHeightReduction rebalances a linear associative-add reduction chain
// into a minimum-depth binary tree (pass 12 of spec.md §4.4), the
// classic hardware-synthesis trick for shortening a serial accumulation's
// critical path. It reuses the chain's own combiner nodes as the tree's
// internal nodes — a chain of k adds over k+1 operands has exactly k
// combiners, the same count a balanced tree over the same operands
// needs — rewiring only which pair of values feeds each one. The final
// combiner (the chain's original last node, which alone may have
// consumers outside the chain) is always assigned the root position, so
// external edges into it never need to move.
func TreeHeightReduction(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	visited := make(map[node.ID]bool)

	for _, v := range g.Nodes() {
		if !v.Microop.IsAssociativeAdd() || visited[v.ID] {
			continue
		}
		if !isChainStart(g, v.ID) {
			continue
		}
		chain, leaves := collectChain(g, v.ID)
		for _, id := range chain {
			visited[id] = true
		}
		if len(chain) < 2 {
			continue // a single combiner is already minimum depth
		}
		rebalance(g, chain, leaves)
	}
	return nil
}

// isChainStart reports whether v has no predecessor that is itself a
// same-op combiner whose sole output feeds v — i.e. v is not the
// continuation of a longer chain already rooted further back.
func isChainStart(g *graph.Graph, v node.ID) bool {
	op := g.Node(v).Microop
	for _, e := range g.InEdges(v) {
		if e.Param < 0 {
			continue
		}
		if g.Node(e.From).Microop == op && g.OutDegree(e.From) == 1 {
			return false
		}
	}
	return true
}

// collectChain walks forward from a chain's first combiner, gathering
// every combiner in the linear reduction (nodes) and each combiner's
// "other" operand (leaves) — the running total's rolling partner value
// at each step. len(leaves) == len(nodes)+1, since the first combiner
// contributes both of its operands as leaves.
func collectChain(g *graph.Graph, start node.ID) (nodes, leaves []node.ID) {
	op := g.Node(start).Microop
	nodes = []node.ID{start}
	for _, e := range g.InEdges(start) {
		if e.Param >= 0 {
			leaves = append(leaves, e.From)
		}
	}

	current := start
	for g.OutDegree(current) == 1 {
		next := g.OutEdges(current)[0].To
		if g.Node(next).Microop != op {
			break
		}
		realIn, other, sawCurrent := 0, node.ID(0), false
		for _, e := range g.InEdges(next) {
			if e.Param < 0 {
				continue
			}
			realIn++
			if e.From == current {
				sawCurrent = true
			} else {
				other = e.From
			}
		}
		if realIn != 2 || !sawCurrent {
			break
		}
		nodes = append(nodes, next)
		leaves = append(leaves, other)
		current = next
	}
	return nodes, leaves
}

// rebalance combines leaves pairwise breadth-first, reusing combiners (in
// order) as the internal nodes of the resulting tree — a standard
// equal-weight Huffman-style reduction, which is depth-optimal when every
// leaf carries the same (unweighted) cost. Only each combiner's two
// inbound edges change; everything else about the node (id, microop,
// label, outbound edges) is untouched.
func rebalance(g *graph.Graph, combiners, leaves []node.ID) {
	queue := append([]node.ID(nil), leaves...)
	for i := 0; len(queue) > 1; i++ {
		a, b := queue[0], queue[1]
		queue = queue[2:]

		combiner := combiners[i]
		for _, e := range append([]graph.Edge(nil), g.InEdges(combiner)...) {
			if e.Param < 0 {
				continue // sentinel edge, not one of the operand edges
			}
			g.RemoveEdge(e.From, combiner)
		}
		g.AddEdge(a, combiner, 1)
		g.AddEdge(b, combiner, 2)
		queue = append(queue, combiner)
	}
}

// FuseRegLoadStores tags the edges along a Load -> arithmetic -> Store
// chain with RegisterEdge when the Store's destination array is bound to
// Register/complete partitioning (pass 13 of spec.md §4.4, config-gated:
// only arrays complete-partitioned into registers are eligible). A
// RegisterEdge tells the scheduler the chain may retire in the same
// cycle rather than across a multicycle functional-unit latency, since
// hardware synthesis maps a register read-modify-write to combinational
// logic rather than a clocked memory port.
func FuseRegLoadStores(g *graph.Graph, _ *config.Config, mb *membind.Table, _ *entity.Table) error {
	for _, v := range g.Nodes() {
		if v.Microop != node.OpStore || v.Array == "" {
			continue
		}
		b, ok := mb.Lookup(v.Array)
		if !ok || b.Kind != membind.Register {
			continue
		}

		cur := v.ID
		for {
			producer, ok := chainProducer(g, cur)
			if !ok {
				break
			}
			retagEdge(g, producer, cur, graph.RegisterEdge)
			if g.Node(producer).IsMemory() {
				break
			}
			cur = producer
		}
	}
	return nil
}

// chainProducer returns the in-edge with the lowest nonnegative operand
// slot — by convention the "primary" value input (the stored value for a
// Store, the first operand for a binary arithmetic op).
func chainProducer(g *graph.Graph, v node.ID) (node.ID, bool) {
	found := false
	var best node.ID
	bestParam := -1
	for _, e := range g.InEdges(v) {
		if e.Param < 0 {
			continue
		}
		if !found || e.Param < bestParam {
			best, bestParam, found = e.From, e.Param, true
		}
	}
	return best, found
}

func retagEdge(g *graph.Graph, from, to node.ID, param int) {
	g.RemoveEdge(from, to)
	g.AddEdge(from, to, param)
}
