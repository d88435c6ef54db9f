package passes

import (
	"testing"

	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

func TestRemoveInductionDependenceRewritesLoopCounter(t *testing.T) {
	g := graph.New()
	phi := addNode(g, node.OpPhi)
	add := addNode(g, node.OpIntAdd)
	g.AddEdge(phi, add, 1)  // i consumed by i+step
	g.AddEdge(add, phi, 1)  // i+step feeds back into the phi

	cfg := config.Default()
	mb := membind.NewTable()
	if err := RemoveInductionDependence(g, &cfg, mb, entity.New()); err != nil {
		t.Fatalf("RemoveInductionDependence: %v", err)
	}
	if g.Node(add).Microop != node.OpIndexAdd {
		t.Fatalf("induction add not rewritten: got %v", g.Node(add).Microop)
	}
}

func TestRemoveInductionDependenceLeavesOrdinaryAddsAlone(t *testing.T) {
	g := graph.New()
	a := addNode(g, node.OpIntAdd)
	b := addNode(g, node.OpIntAdd)
	g.AddEdge(a, b, 1)

	cfg := config.Default()
	mb := membind.NewTable()
	if err := RemoveInductionDependence(g, &cfg, mb, entity.New()); err != nil {
		t.Fatalf("RemoveInductionDependence: %v", err)
	}
	if g.Node(a).Microop != node.OpIntAdd || g.Node(b).Microop != node.OpIntAdd {
		t.Fatalf("non-induction adds were rewritten")
	}
}
