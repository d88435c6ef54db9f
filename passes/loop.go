package passes

import (
	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// loopLabel resolves a graph.LoopBound's marker node back to the source
// (function, label) pair a config directive names it by.
func loopLabel(g *graph.Graph, ents *entity.Table, lb graph.LoopBound) (function, label string) {
	n := g.Node(lb.Node)
	info := ents.LabelInfo(n.InstLabel)
	return ents.FunctionName(info.Function), info.Name
}

// LoopFlatten drops the iteration structure of a flattened loop (pass 7
// of spec.md §4.4): spec.md describes this as removing the loop's
// back-edges, but this builder never materializes an explicit loop-back
// graph edge (see dddg's recordLoopBound) — iteration boundaries live
// only in graph.LoopBounds. Flattening therefore means removing every
// LoopBound marker for the named loop, so downstream passes (notably
// loopUnrolling and storeBuffer, which key off LoopBounds) see one
// continuous body instead of repeated iterations.
func LoopFlatten(g *graph.Graph, cfg *config.Config, _ *membind.Table, ents *entity.Table) error {
	kept := g.LoopBounds[:0:0]
	for _, lb := range g.LoopBounds {
		function, label := loopLabel(g, ents, lb)
		if cfg.IsFlattened(function, label) {
			continue
		}
		kept = append(kept, lb)
	}
	g.LoopBounds = kept
	return nil
}

// LoopUnrolling keeps every Nth loop-bound marker for a loop unrolled by
// factor N (pass 8 of spec.md §4.4): the markers for the N-1
// intermediate iterations are dropped so the unrolled body is scheduled
// as one larger flat block, while a marker every N iterations preserves
// the (now coarser) iteration boundary storeBuffer and loopPipelining
// key off. A loop with no unroll directive (factor 1, config.go's
// default) is left untouched.
func LoopUnrolling(g *graph.Graph, cfg *config.Config, _ *membind.Table, ents *entity.Table) error {
	counts := make(map[string]int)
	kept := g.LoopBounds[:0:0]

	for _, lb := range g.LoopBounds {
		function, label := loopLabel(g, ents, lb)
		factor := cfg.UnrollFactor(function, label)
		if factor <= 1 {
			kept = append(kept, lb)
			continue
		}
		key := function + "/" + label
		n := counts[key]
		counts[key] = n + 1
		if n%factor == 0 {
			kept = append(kept, lb)
		}
	}
	g.LoopBounds = kept
	return nil
}

// LoopPipelining replaces a pipelined loop's per-iteration serialization
// with a single cross-iteration dependence from the first non-induction
// node of iteration i to iteration i+1 (pass 14 of spec.md §4.4).
//
// Per the recorded Open Question decision, this models initiation
// interval 1: the loop's iterations overlap completely except for a
// single-cycle offset between each iteration's first real (non-IndexAdd)
// node, modeled here as one ControlEdge per consecutive marker pair. The
// II field of a pipelining directive is not read; a directive that names
// a larger II gets the same single-cycle offset. Markers beyond the first are
// otherwise left as ordinary LoopBounds entries — loopPipelining does not
// touch iteration count, only the added inter-iteration edge.
func LoopPipelining(g *graph.Graph, cfg *config.Config, _ *membind.Table, ents *entity.Table) error {
	var prevAnchor node.ID
	havePrev := false
	var prevLoop string

	for _, lb := range g.LoopBounds {
		function, label := loopLabel(g, ents, lb)
		if _, ok := cfg.Pipelined(function, label); !ok {
			havePrev = false
			continue
		}
		key := function + "/" + label
		anchor, ok := firstNonInduction(g, lb.Node)
		if !ok {
			continue
		}
		if havePrev && prevLoop == key {
			g.AddEdge(prevAnchor, anchor, graph.ControlEdge)
		}
		prevAnchor, havePrev, prevLoop = anchor, true, key
	}
	return nil
}

// firstNonInduction walks forward from a loop-bound marker node along
// node id order, returning the first node whose microop is not the
// induction-variable IndexAdd synthesized by removeInductionDependence.
// The walk is not bounded by the basic block; it may run to the end of
// the graph.
func firstNonInduction(g *graph.Graph, start node.ID) (node.ID, bool) {
	for id := start; int(id) < g.NumNodes(); id++ {
		if g.Node(id).Microop != node.OpIndexAdd {
			return id, true
		}
	}
	return 0, false
}
