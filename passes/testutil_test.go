package passes

import (
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/node"
)

// addNode appends a fresh node of the given microop to g, returning its id.
func addNode(g *graph.Graph, op node.Microop) node.ID {
	return g.AddNode(node.New(0, op))
}

// addMem attaches a MemAccess to the node at id.
func addMem(g *graph.Graph, id node.ID, vaddr uint64) {
	g.Node(id).Mem = &node.MemAccess{Vaddr: vaddr, SizeBit: 32}
}

// labeled stamps a node with an (function, label) identity an
// entity.Table can resolve back, for the loop passes' config matching.
func labeled(ents *entity.Table, g *graph.Graph, id node.ID, function, label string) {
	fn := ents.Function(function)
	n := g.Node(id)
	n.DynFunc = entity.DynamicFunction{Function: fn, Invocation: 0}
	n.InstLabel = ents.Label(fn, label, 0)
}
