// Package graph implements the Program Graph: a directed graph whose
// vertices are node ids and whose edges carry a small integer parameter
// id (an operand slot, or one of the four synthetic sentinel tags).
//
// Per the Design Notes, nodes and edges live in an arena (a node's id is
// its index) with a CSR-like adjacency — two edge slices per node,
// rather than per-node linked lists — so passes can express themselves
// as either in-place edge rewrites or full rebuilds.
package graph

import (
	"fmt"

	"github.com/sarchlab/aladdin/node"
)

// Edge parameter id sentinels. Real operand edges carry a nonnegative
// parameter id (the operand slot on the consumer); these four negative
// values encode synthetic dependence kinds.
const (
	ControlEdge     = -1
	RegisterEdge    = -2
	MemoryEdge      = -3
	FusedBranchEdge = -4
)

// Edge is one directed arc, param ∈ {operand slot ≥ 0} ∪ {the four
// sentinels above}.
type Edge struct {
	From, To node.ID
	Param    int
}

// LoopBound is one (node_id, depth) pair in the loop-bound sequence:
// depth is the loop-nesting depth of the enclosing scope (0 = function
// top), inserted at every observed back-edge target and function-call
// boundary.
type LoopBound struct {
	Node  node.ID
	Depth int
}

// Graph is the arena of nodes plus CSR-like adjacency.
type Graph struct {
	nodes []*node.Node

	out [][]Edge // out[v] = edges leaving v
	in  [][]Edge // in[v]  = edges entering v

	// outIndex/inIndex speed up the idempotent-insert and edge-exists
	// checks: outIndex[v][to] -> position in out[v], so a duplicate
	// (src,dst) pair is detected in O(1) rather than a linear scan.
	outIndex []map[node.ID]int
	inIndex  []map[node.ID]int

	LoopBounds []LoopBound
}

// New creates an empty Program Graph.
func New() *Graph {
	return &Graph{}
}

// AddNode appends n to the arena, sets n.ID to the next sequential id
// (spec.md §3's "assigned in builder insertion order; monotonically
// increasing"), and returns that id.
func (g *Graph) AddNode(n *node.Node) node.ID {
	id := node.ID(len(g.nodes))
	n.ID = id
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.outIndex = append(g.outIndex, make(map[node.ID]int))
	g.inIndex = append(g.inIndex, make(map[node.ID]int))
	return id
}

// NumNodes returns the number of nodes ever inserted (isolated nodes
// still count — isolation removes edges, not the node itself).
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns the node record for id.
func (g *Graph) Node(id node.ID) *node.Node { return g.nodes[id] }

// Nodes returns the full node arena, in insertion (node-id) order.
func (g *Graph) Nodes() []*node.Node { return g.nodes }

// EdgeExists reports whether an edge src->dst already exists, regardless
// of its parameter id (at most one edge per (source, target) pair, per
// spec.md §3).
func (g *Graph) EdgeExists(src, dst node.ID) bool {
	_, ok := g.outIndex[src][dst]
	return ok
}

// AddEdge inserts src->dst with the given parameter id. Idempotent per
// (src, dst): if an edge already exists between this pair, the call is
// skipped (spec.md §3). Cycle creation is caller-checked, not enforced
// here (spec.md §4.2) — callers that may introduce a cycle must verify
// acyclicity themselves.
func (g *Graph) AddEdge(src, dst node.ID, param int) {
	if g.EdgeExists(src, dst) {
		return
	}
	e := Edge{From: src, To: dst, Param: param}
	g.outIndex[src][dst] = len(g.out[src])
	g.out[src] = append(g.out[src], e)
	g.inIndex[dst][src] = len(g.in[dst])
	g.in[dst] = append(g.in[dst], e)
}

// RemoveEdge deletes the edge src->dst, if any.
func (g *Graph) RemoveEdge(src, dst node.ID) {
	if _, ok := g.outIndex[src][dst]; !ok {
		return
	}
	g.out[src] = removeSwap(g.out[src], g.outIndex[src], dst)
	g.in[dst] = removeSwap(g.in[dst], g.inIndex[dst], src)
}

// removeSwap removes the edge keyed by key from edges via swap-with-last
// (O(1)), fixing up index for both the removed key and whichever edge
// got moved into its slot. index maps the "other" endpoint of each edge
// in this slice to its position.
func removeSwap(edges []Edge, index map[node.ID]int, key node.ID) []Edge {
	pos := index[key]
	last := len(edges) - 1

	if pos != last {
		// Find which key currently points at the last slot and move it
		// into pos, keeping index consistent with the swap below.
		for k, v := range index {
			if v == last {
				index[k] = pos
				break
			}
		}
		edges[pos] = edges[last]
	}
	edges = edges[:last]
	delete(index, key)
	return edges
}

// IsolateNode removes all edges touching v (both directions). Logically
// equivalent to deletion for scheduling purposes, per spec.md §3 — the
// node record itself is never removed from the arena.
func (g *Graph) IsolateNode(v node.ID) {
	for _, e := range append([]Edge(nil), g.out[v]...) {
		g.RemoveEdge(e.From, e.To)
	}
	for _, e := range append([]Edge(nil), g.in[v]...) {
		g.RemoveEdge(e.From, e.To)
	}
}

// OutEdges returns the edges leaving v.
func (g *Graph) OutEdges(v node.ID) []Edge { return g.out[v] }

// InEdges returns the edges entering v.
func (g *Graph) InEdges(v node.ID) []Edge { return g.in[v] }

// InDegree and OutDegree report edge counts, used by idempotence tests
// ("after removePhiNodes, every phi node has zero in- and out-edges").
func (g *Graph) InDegree(v node.ID) int  { return len(g.in[v]) }
func (g *Graph) OutDegree(v node.ID) int { return len(g.out[v]) }

// Topological iterates nodes in node-id order, which is a valid
// topological order as long as no pass has reordered nodes (spec.md
// §4.2: "Topological order follows node_id when the graph is unmodified
// by a pass, which the scheduler relies on"). Passes in this module
// never reorder the arena, only rewire edges, so this holds throughout.
func (g *Graph) Topological() []node.ID {
	order := make([]node.ID, len(g.nodes))
	for i := range order {
		order[i] = node.ID(i)
	}
	return order
}

// ReverseTopological is Topological in reverse, used by ALAP scheduling.
func (g *Graph) ReverseTopological() []node.ID {
	order := g.Topological()
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// CheckAcyclic walks the graph with a standard DFS coloring scheme and
// reports the first cycle found, if any. Passes are expected to
// preserve acyclicity (spec.md §3); this is the verification a test or
// a paranoid caller can run, since AddEdge itself does not enforce it.
func (g *Graph) CheckAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.nodes))
	var stack []node.ID

	var visit func(v node.ID) error
	visit = func(v node.ID) error {
		color[v] = gray
		stack = append(stack, v)
		for _, e := range g.out[v] {
			switch color[e.To] {
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			case gray:
				return fmt.Errorf("cycle detected through node %d -> %d", v, e.To)
			}
		}
		stack = stack[:len(stack)-1]
		color[v] = black
		return nil
	}

	for i := range g.nodes {
		if color[i] == white {
			if err := visit(node.ID(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
