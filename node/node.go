// Package node defines the Execution Node: one record per dynamic
// instruction in the trace, and the closed microop enumeration modeled
// on LLVM IR opcodes plus the synthetic opcodes the builder and
// optimization passes introduce.
package node

import (
	"fmt"
	"sync"

	"github.com/sarchlab/aladdin/entity"
)

// Microop is the closed set of operation kinds a Node can carry.
type Microop int

// The LLVM-IR-derived microops, plus the synthetic ones the builder and
// passes introduce (IndexAdd, DMALoad/DMAStore, SpecialMathOp, DMAFence).
const (
	OpIntAdd Microop = iota
	OpIntSub
	OpIntMul
	OpIntDiv
	OpFloatAdd
	OpFloatSub
	OpFloatMul
	OpFloatDiv
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseXor
	OpShiftLeft
	OpShiftRight
	OpLoad
	OpStore
	OpPhi
	OpBranch
	OpCall
	OpRet
	OpGetElementPtr
	OpIndexAdd     // synthetic: induction-variable add, zero latency
	OpDMALoad       // synthetic
	OpDMAStore      // synthetic
	OpDMAFence      // synthetic: serializes DMA nodes
	OpSpecialMathOp // synthetic: sqrt/exp/log/... intrinsics
)

var (
	opNames   = defaultOpNames()
	opNamesMu sync.RWMutex
)

func defaultOpNames() []string {
	return []string{
		"IntAdd", "IntSub", "IntMul", "IntDiv",
		"FloatAdd", "FloatSub", "FloatMul", "FloatDiv",
		"BitwiseAnd", "BitwiseOr", "BitwiseXor",
		"ShiftLeft", "ShiftRight",
		"Load", "Store", "Phi", "Branch", "Call", "Ret", "GetElementPtr",
		"IndexAdd", "DMALoad", "DMAStore", "DMAFence", "SpecialMathOp",
	}
}

// String renders the microop name for diagnostics and reports.
func (m Microop) String() string {
	opNamesMu.RLock()
	defer opNamesMu.RUnlock()
	if int(m) >= 0 && int(m) < len(opNames) {
		return opNames[m]
	}
	return fmt.Sprintf("Microop(%d)", m)
}

// IsMemory reports whether a microop carries a MemAccess.
func (m Microop) IsMemory() bool {
	switch m {
	case OpLoad, OpStore, OpDMALoad, OpDMAStore:
		return true
	default:
		return false
	}
}

// IsAssociativeAdd reports whether a microop participates in the
// tree-height-reduction allow-list of commutative, associative chains.
func (m Microop) IsAssociativeAdd() bool {
	return m == OpIntAdd || m == OpFloatAdd
}

// ID uniquely identifies a Node; assigned in builder insertion order and
// monotonically increasing.
type ID int

// SpecialOp names the closed set of math intrinsics and the memcpy
// family a Call can be rewritten into when its target matches the
// builder's intrinsic whitelist. Unknown intrinsics preserve as opaque
// Calls (SpecialOp is not set).
type SpecialOp int

const (
	SpecialNone SpecialOp = iota
	SpecialSqrt
	SpecialExp
	SpecialLog
	SpecialSin
	SpecialCos
	SpecialMemcpy
	SpecialMemmove
	SpecialMemset
)

// MemAccess is present iff the node's microop is one of Load, Store,
// DMALoad, DMAStore.
type MemAccess struct {
	Vaddr   uint64
	SizeBit int
	Value   uint64
	IsFloat bool
}

// Node is one record per dynamic instruction.
type Node struct {
	ID      ID
	Microop Microop

	DynFunc   entity.DynamicFunction
	InstLabel entity.LabelID // (function, instruction-label) via the Label domain
	SourceVar entity.VariableID

	// DynInstString is the precomputed "<function>-<invocation>-<label>"
	// identity string, matching the reference trace's dynamic-instruction
	// naming (spec.md §8's AES scenario).
	DynInstString string

	Mem   *MemAccess // optional
	Array string     // resolved array label, "" if not a memory node
	// PartitionIndex is resolved by membind; -1 until then.
	PartitionIndex int

	LoopDepth int32

	Special SpecialOp

	// Scheduling fields, mutated only by package scheduler (spec.md §4.5/§5).
	NumParents              int
	TimeBeforeExecution     int64
	ExecutionCycle          int64
	CompleteExecutionCycle  int64
	Scheduled               bool
}

// New creates a Node with the given id and microop; scheduling fields
// start in their not-yet-scheduled state.
func New(id ID, op Microop) *Node {
	return &Node{
		ID:                     id,
		Microop:                op,
		PartitionIndex:         -1,
		TimeBeforeExecution:    0,
		ExecutionCycle:         -1,
		CompleteExecutionCycle: -1,
	}
}

// IsMemory reports whether this node carries a memory access.
func (n *Node) IsMemory() bool {
	return n.Mem != nil
}
