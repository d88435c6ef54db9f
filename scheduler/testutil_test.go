package scheduler

import (
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/node"
)

func addNode(g *graph.Graph, op node.Microop) node.ID {
	return g.AddNode(node.New(0, op))
}

func addMem(g *graph.Graph, id node.ID, array string, vaddr uint64) {
	g.Node(id).Mem = &node.MemAccess{Vaddr: vaddr, SizeBit: 32}
	g.Node(id).Array = array
}
