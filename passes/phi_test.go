package passes

import (
	"testing"

	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

func TestRemovePhiNodesRedirectsConsumers(t *testing.T) {
	g := graph.New()
	producer := addNode(g, node.OpIntAdd)
	phi := addNode(g, node.OpPhi)
	consumer := addNode(g, node.OpIntAdd)
	g.AddEdge(producer, phi, 1)
	g.AddEdge(phi, consumer, 2)

	cfg := config.Default()
	mb := membind.NewTable()
	ents := entity.New()
	if err := RemovePhiNodes(g, &cfg, mb, ents); err != nil {
		t.Fatalf("RemovePhiNodes: %v", err)
	}
	if !g.EdgeExists(producer, consumer) {
		t.Fatalf("consumer not redirected to phi's producer")
	}
	if g.InDegree(phi) != 0 || g.OutDegree(phi) != 0 {
		t.Fatalf("phi not isolated: in=%d out=%d", g.InDegree(phi), g.OutDegree(phi))
	}

	// Idempotent: running again on the already-isolated phi is a no-op.
	if err := RemovePhiNodes(g, &cfg, mb, ents); err != nil {
		t.Fatalf("second RemovePhiNodes: %v", err)
	}
	if !g.EdgeExists(producer, consumer) {
		t.Fatalf("edge lost on second run")
	}
}
