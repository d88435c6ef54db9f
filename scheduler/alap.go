package scheduler

import "github.com/sarchlab/aladdin/graph"

// Slack is the ALAP ("as late as possible") annotation the Reporter uses
// to describe how much headroom a node had beyond its actual completion
// cycle; it never feeds back into the schedule itself (spec.md §4.5:
// "only for reporting 'slack,' never alters completion cycles").
type Slack struct {
	LatestExecutionCycle int64
	Slack                int64
}

// ComputeALAP walks g in reverse topological order, assigning each node
// the latest execution cycle it could have run at without delaying any
// consumer, given that consumer's own ALAP cycle and the edge's implied
// minimum gap (REGISTER_EDGE: 0 cycles; otherwise: 1 cycle). Nodes with
// no consumers (graph sinks) are anchored at their actual completion
// cycle, so the recursion has a base case independent of the scheduled
// run's total length.
func ComputeALAP(g *graph.Graph) map[int]Slack {
	result := make(map[int]Slack, g.NumNodes())

	for _, id := range g.ReverseTopological() {
		n := g.Node(id)
		if n.ExecutionCycle < 0 {
			continue // never scheduled (isolated, or run aborted early)
		}

		latest := int64(-1)
		for _, e := range g.OutEdges(id) {
			consumerSlack, ok := result[int(e.To)]
			if !ok {
				continue
			}
			gap := int64(1)
			if e.Param == graph.RegisterEdge {
				gap = 0
			}
			bound := consumerSlack.LatestExecutionCycle - gap
			if latest < 0 || bound < latest {
				latest = bound
			}
		}
		if latest < 0 {
			latest = n.CompleteExecutionCycle // sink: anchored at its own completion
		}

		result[int(id)] = Slack{
			LatestExecutionCycle: latest,
			Slack:                latest - n.ExecutionCycle,
		}
	}

	return result
}
