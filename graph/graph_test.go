package graph_test

import (
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/node"
)

var _ = Describe("Graph", func() {
	var g *graph.Graph

	BeforeEach(func() {
		g = graph.New()
	})

	addNode := func(op node.Microop) node.ID {
		return g.AddNode(node.New(0, op))
	}

	It("assigns node ids in insertion order", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)
		Expect(a).To(Equal(node.ID(0)))
		Expect(b).To(Equal(node.ID(1)))
	})

	It("is idempotent per (src, dst) pair", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)

		g.AddEdge(a, b, 0)
		g.AddEdge(a, b, 1) // duplicate, different param: must be skipped

		Expect(g.OutEdges(a)).To(HaveLen(1))
		Expect(g.OutEdges(a)[0].Param).To(Equal(0))
	})

	It("removes edges from both adjacency directions", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)
		g.AddEdge(a, b, 0)

		g.RemoveEdge(a, b)

		Expect(g.OutEdges(a)).To(BeEmpty())
		Expect(g.InEdges(b)).To(BeEmpty())
		Expect(g.EdgeExists(a, b)).To(BeFalse())
	})

	It("isolates a node, leaving it in the arena with zero edges", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpPhi)
		c := addNode(node.OpIntAdd)
		g.AddEdge(a, b, 0)
		g.AddEdge(b, c, 0)

		g.IsolateNode(b)

		Expect(g.InDegree(b)).To(Equal(0))
		Expect(g.OutDegree(b)).To(Equal(0))
		Expect(g.NumNodes()).To(Equal(3)) // node record itself survives
	})

	It("keeps the remaining edges consistent after a swap-removal", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)
		c := addNode(node.OpIntAdd)
		d := addNode(node.OpIntAdd)
		g.AddEdge(a, d, 0)
		g.AddEdge(b, d, 1)
		g.AddEdge(c, d, 2)

		g.RemoveEdge(a, d) // removes the first of three in-edges to d

		got := map[node.ID]int{}
		for _, e := range g.InEdges(d) {
			got[e.From] = e.Param
		}
		want := map[node.ID]int{b: 1, c: 2}
		if diff := cmp.Diff(want, got); diff != "" {
			Fail("in-edges mismatch (-want +got):\n" + diff)
		}
	})

	It("detects a cycle introduced by a caller", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)
		g.AddEdge(a, b, 0)
		g.AddEdge(b, a, 0)

		Expect(g.CheckAcyclic()).To(HaveOccurred())
	})

	It("reports node-id order as the topological order", func() {
		a := addNode(node.OpIntAdd)
		b := addNode(node.OpIntAdd)
		c := addNode(node.OpIntAdd)

		Expect(g.Topological()).To(Equal([]node.ID{a, b, c}))
		Expect(g.ReverseTopological()).To(Equal([]node.ID{c, b, a}))
	})
})
