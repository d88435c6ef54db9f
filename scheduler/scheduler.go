// Package scheduler implements the event-driven, resource-constrained
// Scheduler of spec.md §4.5: a two-queue, single-threaded cooperative
// loop that advances one logical cycle per Step call, honoring port
// budgets, multicycle functional-unit latency, and the REGISTER_EDGE
// same-cycle exception, and detecting deadlock when no node completes
// for a configured number of consecutive cycles.
//
// The core algorithm is exposed as Step, a pure function of the
// scheduler's own state, so it can be driven directly in tests without
// an akita engine (spec.md §9: "explicit step() cooperative event loop,
// not coroutines, for single-step testability"). Ticking wraps the same
// Step loop as an akita TickingComponent for integration runs that also
// drive a Simulated memory interface.
package scheduler

import (
	"sort"
	"strings"

	"github.com/sarchlab/aladdin/aerr"
	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/memif"
	"github.com/sarchlab/aladdin/node"
)

// Latencies gives the fixed multicycle functional-unit latencies of
// spec.md §4.5: "stamp execution_cycle on first encounter, decrement
// remaining latency, complete at zero." These are approximate, relative
// figures (no CACTI-derived timing model ships in the retrieval pack),
// fixed by DefaultLatencies and overridable only through SetLatencies
// rather than read from any config directive, since spec.md's config
// grammar never names them.
type Latencies struct {
	Multiply      int
	Divide        int
	FloatMultiply int
	FloatDivide   int
	SpecialMath   int
}

// DefaultLatencies returns the scheduler's baseline multicycle timing.
func DefaultLatencies() Latencies {
	return Latencies{
		Multiply:      3,
		Divide:        14,
		FloatMultiply: 4,
		FloatDivide:   15,
		SpecialMath:   6,
	}
}

func (l Latencies) forOp(op node.Microop) (cycles int, isMulticycle bool) {
	switch op {
	case node.OpIntMul:
		return l.Multiply, true
	case node.OpIntDiv:
		return l.Divide, true
	case node.OpFloatMul:
		return l.FloatMultiply, true
	case node.OpFloatDiv:
		return l.FloatDivide, true
	case node.OpSpecialMathOp:
		return l.SpecialMath, true
	default:
		return 0, false
	}
}

// defaultMaxRetries is the initial Scheduler.MaxRetries: how many times
// an external-memory request may be
// reissued after a failure before the scheduler escalates to a fatal
// KindExternalMemory error (spec.md §7: "external-interface retries are
// the only local recovery").
const defaultMaxRetries = 3

// defaultDeadlockThreshold is the number of consecutive no-progress
// cycles the scheduler tolerates before raising KindDeadlock.
const defaultDeadlockThreshold = 1000

type pendingMem struct {
	issued bool
	done   bool
	failed error
}

// Scheduler is the stateful two-queue event loop. Construct with New,
// then call Step repeatedly (directly, or via a Ticking wrapper) until
// Done reports true or an error is returned.
type Scheduler struct {
	graph    *graph.Graph
	bindings *membind.Table
	mem      memif.MemoryInterface
	lat      Latencies

	DeadlockThreshold int
	MaxRetries        int

	// OnCycle, if set, is invoked once per Step call with the ids that
	// occupied a functional unit this cycle (active) and the subset of
	// those that finished (completed) — the Reporter's hook for building
	// per-cycle activity vectors (spec.md §4.6).
	OnCycle func(cycle int64, active, completed []node.ID)

	currentCycle   int64
	executedCount  int
	totalConnected int
	done           bool

	executingQueue []node.ID
	readyQueue     []node.ID

	multicycleRemaining map[node.ID]int
	pending             map[node.ID]*pendingMem
	retries             map[node.ID]int

	stalledCycles int
}

// New builds a Scheduler over g, resolving each connected node's initial
// num_parents from the graph's in-degree and seeding the executing or
// ready queue accordingly. mem is the external memory interface every
// Cache/DMA-bound node delegates to; it must not yet have a completion
// callback registered — New installs the scheduler's own.
func New(g *graph.Graph, bindings *membind.Table, mem memif.MemoryInterface) *Scheduler {
	s := &Scheduler{
		graph:               g,
		bindings:            bindings,
		mem:                 mem,
		lat:                 DefaultLatencies(),
		DeadlockThreshold:   defaultDeadlockThreshold,
		MaxRetries:          defaultMaxRetries,
		multicycleRemaining: make(map[node.ID]int),
		pending:             make(map[node.ID]*pendingMem),
		retries:             make(map[node.ID]int),
	}
	mem.OnCompletion(s.handleCompletion)
	s.initialize()
	return s
}

// SetLatencies overrides the default multicycle latency table.
func (s *Scheduler) SetLatencies(l Latencies) { s.lat = l }

func (s *Scheduler) initialize() {
	for _, n := range s.graph.Nodes() {
		n.NumParents = s.graph.InDegree(n.ID)
		n.TimeBeforeExecution = 0
		n.ExecutionCycle = -1
		n.CompleteExecutionCycle = -1
		n.Scheduled = false
		s.totalConnected++

		if n.NumParents == 0 {
			s.enqueue(n.ID)
		}
	}
}

// enqueue places id into the executing queue if it is eligible this
// cycle (time_before_execution <= current_cycle), otherwise into the
// ready queue to be drained later.
func (s *Scheduler) enqueue(id node.ID) {
	n := s.graph.Node(id)
	if n.TimeBeforeExecution <= s.currentCycle {
		s.executingQueue = append(s.executingQueue, id)
	} else {
		s.readyQueue = append(s.readyQueue, id)
	}
}

// Cycle returns the current logical cycle counter.
func (s *Scheduler) Cycle() int64 { return s.currentCycle }

// Done reports whether every connected node has completed.
func (s *Scheduler) Done() bool { return s.done }

// ExecutingQueue returns a snapshot of node ids currently awaiting
// completion, for diagnostics and deadlock messages.
func (s *Scheduler) ExecutingQueue() []node.ID {
	return append([]node.ID(nil), s.executingQueue...)
}

// Run drives Step until the schedule completes or a fatal error occurs,
// returning the total cycle count.
func Run(s *Scheduler) (int64, error) {
	for !s.Done() {
		if err := s.Step(); err != nil {
			return s.currentCycle, err
		}
	}
	return s.currentCycle, nil
}

// Step advances the schedule by exactly one logical cycle, per the
// five-part loop of spec.md §4.5.
func (s *Scheduler) Step() error {
	if s.done {
		return nil
	}

	activeThisCycle := append([]node.ID(nil), s.executingQueue...)

	s.mem.Tick()
	s.bindings.ResetPortCounters()

	completed, err := s.runExecutingQueue()
	if err != nil {
		return err
	}
	if err := s.propagate(completed); err != nil {
		return err
	}

	newCycle := s.currentCycle + 1
	s.drainReady(newCycle)

	if len(completed) > 0 {
		s.stalledCycles = 0
	} else {
		s.stalledCycles++
		if s.stalledCycles >= s.DeadlockThreshold {
			return aerr.Deadlock(idsToInts(s.executingQueue), s.stalledCycles)
		}
	}

	if s.OnCycle != nil {
		s.OnCycle(s.currentCycle, activeThisCycle, completed)
	}

	s.currentCycle = newCycle
	if s.executedCount == s.totalConnected {
		s.done = true
	}
	return nil
}

// runExecutingQueue walks the executing queue once, in insertion order,
// returning the ids that completed this cycle and leaving the queue
// holding only what remains in flight.
func (s *Scheduler) runExecutingQueue() ([]node.ID, error) {
	var completed []node.ID
	next := s.executingQueue[:0:0]

	for _, id := range s.executingQueue {
		n := s.graph.Node(id)
		done, err := s.runOne(n)
		if err != nil {
			return nil, err
		}
		if done {
			n.CompleteExecutionCycle = s.currentCycle
			if n.ExecutionCycle == -1 {
				n.ExecutionCycle = s.currentCycle
			}
			n.Scheduled = true
			completed = append(completed, id)
			s.executedCount++
		} else {
			next = append(next, id)
		}
	}

	s.executingQueue = next
	return completed, nil
}

// runOne evaluates one executing-queue node for this cycle, returning
// whether it completed.
func (s *Scheduler) runOne(n *node.Node) (bool, error) {
	switch {
	case n.Microop.IsMemory():
		return s.runMemory(n)
	default:
		if cycles, multi := s.lat.forOp(n.Microop); multi {
			return s.runMulticycle(n, cycles), nil
		}
		return true, nil // adds, logical ops, IndexAdd, isolated phis, branches
	}
}

func (s *Scheduler) runMulticycle(n *node.Node, latency int) bool {
	remaining, seen := s.multicycleRemaining[n.ID]
	if !seen {
		n.ExecutionCycle = s.currentCycle
		remaining = latency
	}
	remaining--
	if remaining <= 0 {
		delete(s.multicycleRemaining, n.ID)
		return true
	}
	s.multicycleRemaining[n.ID] = remaining
	return false
}

func (s *Scheduler) runMemory(n *node.Node) (bool, error) {
	array := n.Array
	if i := strings.IndexByte(array, '#'); i >= 0 {
		array = array[:i] // passes.ScratchpadPartition's "label#index" form
	}
	b, ok := s.bindings.Lookup(array)
	if !ok {
		return false, aerr.MemoryBinding(int(n.ID), "array %q has no binding", n.Array)
	}

	switch b.Kind {
	case membind.Register:
		return true, nil

	case membind.Scratchpad:
		idx := n.PartitionIndex
		if idx < 0 {
			resolved, err := b.PartitionIndex(n.Mem.Vaddr)
			if err != nil {
				return false, err
			}
			idx = resolved
			n.PartitionIndex = idx
		}
		if !b.TryAcquirePort(idx) {
			return false, nil // no free port this cycle, stay in queue
		}
		b.RecordAccess(idx, n.Microop == node.OpLoad)
		return true, nil

	default: // Cache, DMA
		return s.runExternal(n, b)
	}
}

func (s *Scheduler) runExternal(n *node.Node, b *membind.Binding) (bool, error) {
	req, issued := s.pending[n.ID]
	isLoad := n.Microop == node.OpLoad || n.Microop == node.OpDMALoad

	if !issued {
		var err error
		if b.Kind == membind.DMA {
			err = s.mem.IssueDMA(n.ID, n.Mem.Vaddr, n.Mem.SizeBit/8, isLoad)
		} else {
			paddr, _, terr := s.mem.Translate(n.Mem.Vaddr, n.Mem.SizeBit/8, isLoad)
			if terr != nil {
				err = terr
			} else {
				err = s.mem.IssueCache(n.ID, n.Mem.Vaddr, paddr, n.Mem.SizeBit/8, isLoad, n.Mem.Value)
			}
		}
		if err != nil {
			return s.retryOrFail(n, err)
		}
		s.pending[n.ID] = &pendingMem{issued: true}
		return false, nil
	}

	if req.failed != nil {
		failed := req.failed
		delete(s.pending, n.ID)
		return s.retryOrFail(n, failed)
	}
	if req.done {
		delete(s.pending, n.ID)
		b.RecordAccess(0, isLoad)
		if b.Kind == membind.DMA && !isLoad {
			idx := int(n.Mem.Vaddr-b.BaseTraceAddr) / b.WordSize
			b.MarkReady(idx)
		}
		return true, nil
	}
	return false, nil
}

func (s *Scheduler) retryOrFail(n *node.Node, cause error) (bool, error) {
	s.retries[n.ID]++
	if s.retries[n.ID] > s.MaxRetries {
		return false, aerr.ExternalMemory(int(n.ID), "exceeded %d retries: %v", s.MaxRetries, cause)
	}
	delete(s.pending, n.ID)
	return false, nil
}

// handleCompletion is registered with the memory interface as the single
// completion callback (spec.md §5: "retired only by the external
// interface's completion callback").
func (s *Scheduler) handleCompletion(id node.ID, err error) {
	req, ok := s.pending[id]
	if !ok {
		req = &pendingMem{issued: true}
		s.pending[id] = req
	}
	if err != nil {
		req.failed = err
		return
	}
	req.done = true
}

// propagate walks every outgoing edge of each node that completed this
// cycle, decrementing consumers' num_parents and updating their
// time_before_execution per the REGISTER_EDGE exception, enqueuing any
// consumer that reaches zero parents.
func (s *Scheduler) propagate(completed []node.ID) error {
	for _, id := range completed {
		for _, e := range s.graph.OutEdges(id) {
			v := s.graph.Node(e.To)
			v.NumParents--
			if v.NumParents < 0 {
				return aerr.GraphIntegrity(int(e.To), "num_parents went negative")
			}

			candidate := s.currentCycle + 1
			if e.Param == graph.RegisterEdge {
				candidate = s.currentCycle
			}
			if candidate > v.TimeBeforeExecution {
				v.TimeBeforeExecution = candidate
			}

			if v.NumParents == 0 {
				s.enqueue(e.To)
			}
		}
	}
	return nil
}

// drainReady moves every ready-queue node whose time_before_execution is
// now eligible (<= newCycle) into the executing queue.
func (s *Scheduler) drainReady(newCycle int64) {
	if len(s.readyQueue) == 0 {
		return
	}
	var stillWaiting []node.ID
	for _, id := range s.readyQueue {
		n := s.graph.Node(id)
		if n.TimeBeforeExecution <= newCycle {
			s.executingQueue = append(s.executingQueue, id)
		} else {
			stillWaiting = append(stillWaiting, id)
		}
	}
	s.readyQueue = stillWaiting
}

func idsToInts(ids []node.ID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	sort.Ints(out)
	return out
}
