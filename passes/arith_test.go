package passes

import (
	"testing"

	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/entity"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/node"
)

// buildReductionChain builds a linear "acc = ((l0+l1)+l2)+l3" chain: three
// OpIntAdd combiners over four leaves, exactly what an unrolled
// accumulation loop produces.
func buildReductionChain(g *graph.Graph) (combiners, leaves []node.ID, root node.ID) {
	leaves = []node.ID{
		addNode(g, node.OpLoad),
		addNode(g, node.OpLoad),
		addNode(g, node.OpLoad),
		addNode(g, node.OpLoad),
	}
	c0 := addNode(g, node.OpIntAdd)
	g.AddEdge(leaves[0], c0, 1)
	g.AddEdge(leaves[1], c0, 2)

	c1 := addNode(g, node.OpIntAdd)
	g.AddEdge(c0, c1, 1)
	g.AddEdge(leaves[2], c1, 2)

	c2 := addNode(g, node.OpIntAdd)
	g.AddEdge(c1, c2, 1)
	g.AddEdge(leaves[3], c2, 2)

	return []node.ID{c0, c1, c2}, leaves, c2
}

func depthOf(g *graph.Graph, v node.ID) int {
	maxDepth := 0
	for _, e := range g.InEdges(v) {
		if e.Param < 0 {
			continue
		}
		if d := depthOf(g, e.From) + 1; d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

func ancestorSet(g *graph.Graph, v node.ID, out map[node.ID]bool) {
	for _, e := range g.InEdges(v) {
		if e.Param < 0 || out[e.From] {
			continue
		}
		out[e.From] = true
		ancestorSet(g, e.From, out)
	}
}

func TestTreeHeightReductionBalancesChain(t *testing.T) {
	g := graph.New()
	_, leaves, root := buildReductionChain(g)
	external := addNode(g, node.OpStore)
	g.AddEdge(root, external, 1)

	cfg := config.Default()
	mb := membind.NewTable()
	if err := TreeHeightReduction(g, &cfg, mb, entity.New()); err != nil {
		t.Fatalf("TreeHeightReduction: %v", err)
	}

	if !g.EdgeExists(root, external) {
		t.Fatalf("external consumer lost root")
	}
	if got, want := depthOf(g, root), 2; got != want {
		t.Fatalf("chain depth after rebalancing: got %d, want %d", got, want)
	}

	ancestors := make(map[node.ID]bool)
	ancestorSet(g, root, ancestors)
	for _, l := range leaves {
		if !ancestors[l] {
			t.Fatalf("leaf %d missing from rebalanced tree", l)
		}
	}
}

func TestTreeHeightReductionSkipsShortChains(t *testing.T) {
	g := graph.New()
	a := addNode(g, node.OpLoad)
	b := addNode(g, node.OpLoad)
	c0 := addNode(g, node.OpIntAdd)
	g.AddEdge(a, c0, 1)
	g.AddEdge(b, c0, 2)

	cfg := config.Default()
	mb := membind.NewTable()
	if err := TreeHeightReduction(g, &cfg, mb, entity.New()); err != nil {
		t.Fatalf("TreeHeightReduction: %v", err)
	}
	if !g.EdgeExists(a, c0) || !g.EdgeExists(b, c0) {
		t.Fatalf("single-combiner chain was mutated")
	}
}

func TestFuseRegLoadStoresRetagsChainToRegisterEdge(t *testing.T) {
	g := graph.New()
	load := addNode(g, node.OpLoad)
	addMem(g, load, 100)
	g.Node(load).Array = "acc"

	arith := addNode(g, node.OpIntAdd)

	store := addNode(g, node.OpStore)
	addMem(g, store, 100)
	g.Node(store).Array = "acc"

	g.AddEdge(load, arith, 1)
	g.AddEdge(arith, store, 1)

	mb := membind.NewTable()
	b, err := membind.New("acc", membind.Register, membind.Cyclic, 1, 4, 4, 1)
	if err != nil {
		t.Fatalf("membind.New: %v", err)
	}
	mb.Bind(b)

	cfg := config.Default()
	if err := FuseRegLoadStores(g, &cfg, mb, entity.New()); err != nil {
		t.Fatalf("FuseRegLoadStores: %v", err)
	}

	findParam := func(from, to node.ID) (int, bool) {
		for _, e := range g.OutEdges(from) {
			if e.To == to {
				return e.Param, true
			}
		}
		return 0, false
	}
	if p, ok := findParam(arith, store); !ok || p != graph.RegisterEdge {
		t.Fatalf("store's value edge not retagged to RegisterEdge: param=%d ok=%v", p, ok)
	}
	if p, ok := findParam(load, arith); !ok || p != graph.RegisterEdge {
		t.Fatalf("load's edge not retagged to RegisterEdge: param=%d ok=%v", p, ok)
	}
}
