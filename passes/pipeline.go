// Package passes implements the fixed fourteen-pass Optimization
// Pipeline of spec.md §4.4: a sequence of graph-rewriting transforms
// that emulate hardware-synthesis decisions (loop unrolling, memory
// partitioning, tree-height reduction, software pipelining, ...) ahead
// of scheduling. Passes run in a fixed order; later passes depend on
// invariants earlier ones establish, so Pipeline.Run is the only
// supported entry point for a full run — individual passes are exported
// for targeted/idempotence testing only.
package passes

import (
	"fmt"

	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// Pass rewrites g in place, consulting cfg for directives and mb for the
// current memory-binding state (some passes populate or mutate mb). ents
// resolves a node's DynFunc/InstLabel back to source names, which the
// loop passes need to match a config directive's symbolic (function,
// label) loop reference.
type Pass func(g *graph.Graph, cfg *config.Config, mb *membind.Table, ents *entity.Table) error

// Pipeline runs the fixed pass sequence.
type Pipeline struct {
	passes []namedPass
}

type namedPass struct {
	name string
	run  Pass
}

// Default returns the Pipeline in the exact order spec.md §4.4 mandates.
func Default() *Pipeline {
	return &Pipeline{passes: []namedPass{
		{"removeInductionDependence", RemoveInductionDependence},
		{"memoryAmbiguation", MemoryAmbiguation},
		{"removePhiNodes", RemovePhiNodes},
		{"initBaseAddress", InitBaseAddress},
		{"completePartition", CompletePartition},
		{"scratchpadPartition", ScratchpadPartition},
		{"loopFlatten", LoopFlatten},
		{"loopUnrolling", LoopUnrolling},
		{"removeSharedLoads", RemoveSharedLoads},
		{"storeBuffer", StoreBuffer},
		{"removeRepeatedStores", RemoveRepeatedStores},
		{"treeHeightReduction", TreeHeightReduction},
		{"fuseRegLoadStores", FuseRegLoadStores},
		{"loopPipelining", LoopPipelining},
	}}
}

// Run executes every pass in order, stopping at the first error. Errors
// are wrapped with the offending pass name for diagnostics.
func (p *Pipeline) Run(g *graph.Graph, cfg *config.Config, mb *membind.Table, ents *entity.Table) error {
	for _, np := range p.passes {
		if err := np.run(g, cfg, mb, ents); err != nil {
			return fmt.Errorf("pass %s: %w", np.name, err)
		}
	}
	return nil
}

// redirectConsumers moves every outgoing edge of from onto to, preserving
// each edge's parameter id, then removes the originals. Used by passes
// that eliminate a node but must keep its consumers fed (removeSharedLoads,
// storeBuffer, removePhiNodes).
func redirectConsumers(g *graph.Graph, from, to node.ID) {
	for _, e := range append([]graph.Edge(nil), g.OutEdges(from)...) {
		g.AddEdge(to, e.To, e.Param)
	}
	g.IsolateNode(from)
}
