package dddg

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/node"
	"github.com/sarchlab/aladdin/trace"
)

func openTrace(t *testing.T, text string) *trace.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := io.WriteString(w, text); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	r, err := trace.Open(&buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestBuildWiresRegisterEdge(t *testing.T) {
	src := strings.Join([]string{
		"0,1,f,bb.0,i0,add",
		"1,add,32,0,",
		"2,add,32,0,",
		"r,add,32,1,x",
		"0,2,f,bb.0,i1,sub",
		"1,add,32,1,x",
		"2,add,32,0,",
		"r,add,32,1,y",
	}, "\n") + "\n"

	res, err := Build(openTrace(t, src))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Graph.NumNodes() != 2 {
		t.Fatalf("want 2 nodes, got %d", res.Graph.NumNodes())
	}
	if !res.Graph.EdgeExists(0, 1) {
		t.Fatal("want a register edge from the defining add to the consuming sub")
	}
}

func TestBuildWiresMemoryEdgeStoreToLoad(t *testing.T) {
	src := strings.Join([]string{
		"0,1,f,bb.0,i0,store",
		"m,0x1000,32",
		"0,2,f,bb.0,i1,load",
		"m,0x1000,32",
	}, "\n") + "\n"

	res, err := Build(openTrace(t, src))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !res.Graph.EdgeExists(0, 1) {
		t.Fatal("want a memory edge from the store to the load at the same address")
	}
	found := false
	for _, e := range res.Graph.OutEdges(0) {
		if e.Param == graph.MemoryEdge {
			found = true
		}
	}
	if !found {
		t.Fatal("want the store->load edge tagged MemoryEdge")
	}
}

func TestBuildRewritesMathIntrinsic(t *testing.T) {
	src := strings.Join([]string{
		"0,1,f,bb.0,sqrt,call",
		"1,add,32,0,",
		"r,add,32,1,y",
	}, "\n") + "\n"

	res, err := Build(openTrace(t, src))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Graph.Node(0).Microop != node.OpSpecialMathOp {
		t.Fatalf("want SpecialMathOp, got %v", res.Graph.Node(0).Microop)
	}
	if res.Graph.Node(0).Special != node.SpecialSqrt {
		t.Fatalf("want SpecialSqrt, got %v", res.Graph.Node(0).Special)
	}
}

func TestBuildRewritesMemcpyToDMAPair(t *testing.T) {
	src := strings.Join([]string{
		"0,1,f,bb.0,llvm.memcpy.p0i8.p0i8.i64,call",
		"1,add,32,0,",
	}, "\n") + "\n"

	res, err := Build(openTrace(t, src))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Graph.NumNodes() != 2 {
		t.Fatalf("want a DMALoad/DMAStore pair (2 nodes), got %d", res.Graph.NumNodes())
	}
	if res.Graph.Node(0).Microop != node.OpDMALoad {
		t.Fatalf("want DMALoad, got %v", res.Graph.Node(0).Microop)
	}
	if res.Graph.Node(1).Microop != node.OpDMAStore {
		t.Fatalf("want DMAStore, got %v", res.Graph.Node(1).Microop)
	}
}

func TestBuildRejectsUnrecognizedOpcode(t *testing.T) {
	src := "0,1,f,bb.0,i0,frobnicate\n"
	if _, err := Build(openTrace(t, src)); err == nil {
		t.Fatal("want error for an unrecognized opcode")
	}
}

func TestCloseDMAFenceSerializesPriorDMANodes(t *testing.T) {
	// Drive a Builder directly (rather than through Build) to exercise
	// CloseDMAFence, which Build() doesn't call automatically.
	b := New()
	r := openTrace(t, strings.Join([]string{
		"0,1,f,bb.0,llvm.memcpy.i64,call",
		"1,add,32,0,",
	}, "\n") + "\n")
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if err := b.process(rec); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	fenceID := b.CloseDMAFence()
	if b.graph.InDegree(fenceID) != 2 {
		t.Fatalf("want the fence to gather both DMA nodes, got in-degree %d", b.graph.InDegree(fenceID))
	}
}
