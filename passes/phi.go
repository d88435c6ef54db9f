package passes

import (
	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// RemovePhiNodes isolates every phi node, rewiring its consumers directly
// from its incoming value producer (pass 3 of spec.md §4.4).
//
// Because the DDDG is built from one dynamic execution rather than a
// static CFG, a phi node in this graph has exactly one data-producing
// predecessor: the register edge from whichever control-flow
// predecessor the trace actually took. "The incoming definition that
// dominates through the taken control edge" (spec.md §4.4 item 3) is
// therefore just that single producer — there is no multi-predecessor
// case to disambiguate at the dynamic-trace level.
func RemovePhiNodes(g *graph.Graph, _ *config.Config, _ *membind.Table, _ *entity.Table) error {
	for _, v := range g.Nodes() {
		if v.Microop != node.OpPhi {
			continue
		}
		if g.InDegree(v.ID) == 0 && g.OutDegree(v.ID) == 0 {
			continue // already processed; pass is idempotent
		}

		producer, ok := phiProducer(g, v.ID)
		if ok {
			redirectConsumers(g, v.ID, producer)
		} else {
			g.IsolateNode(v.ID)
		}
	}
	return nil
}

func phiProducer(g *graph.Graph, phi node.ID) (node.ID, bool) {
	for _, e := range g.InEdges(phi) {
		if e.Param >= 0 {
			return e.From, true
		}
	}
	return 0, false
}
