// Package membind implements the Memory Binding: per-array metadata
// (kind, partition scheme, word/port geometry, base trace address) and
// the partition-index arithmetic of spec.md §3/§4.3. The graph-walking
// side of binding resolution — finding which array a memory node's
// address chain resolves to — lives in package passes, which is the
// only caller that needs the Program Graph.
package membind

import (
	"github.com/sarchlab/aladdin/aerr"
	"github.com/sarchlab/aladdin/config"
)

// Kind is the closed set of memory-entity kinds a binding can have.
type Kind int

const (
	Register Kind = iota
	Scratchpad
	Cache
	DMA
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "register"
	case Scratchpad:
		return "scratchpad"
	case Cache:
		return "cache"
	case DMA:
		return "dma"
	default:
		return "unknown"
	}
}

// PartitionType distinguishes how a Scratchpad binding's address space is
// sliced; meaningless for the other kinds.
type PartitionType int

const (
	Cyclic PartitionType = iota
	Block
)

// Binding is the per-array memory-entity record of spec.md §3.
type Binding struct {
	Array         string
	Kind          Kind
	PartitionType PartitionType
	NumPartitions int
	WordSize      int // bytes
	TotalSize     int // bytes
	NumPorts      int
	BaseTraceAddr uint64

	// partitionSizes holds the per-partition byte width for Block
	// partitioning, where sizes may differ by at most one word; nil for
	// Cyclic and Register bindings, which compute index arithmetic instead.
	partitionSizes []int

	// portsUsed is reset to zero on every partition at the start of each
	// scheduler cycle and incremented as memory ops claim a port; mutated
	// only from package scheduler (spec.md §4.5 step 1, §5).
	portsUsed []int
	// loadCount/storeCount are cumulative, never reset, used by the
	// Reporter's aggregate counters (spec.md §4.6).
	loadCount  []int
	storeCount []int

	// ReadyBits tracks, per word, whether a DMA-streamed partition has
	// actually received its data yet: a DMA target's words become valid
	// progressively as the transfer lands rather than all at once (spec.md
	// Glossary, "Ready bits"). The scheduler sets a word's bit when a
	// DMAStore to it completes; nothing consults IsReady before a read, so
	// reading an unready word raises no error. nil for non-DMA bindings.
	ReadyBits []bool
}

// New builds a Binding, validating the §3 invariant that total_size is
// divisible by word_size.
func New(array string, kind Kind, ptype PartitionType, numPartitions, wordSize, totalSize, numPorts int) (*Binding, error) {
	if wordSize <= 0 {
		return nil, aerr.MemoryBinding(-1, "array %q: word_size must be positive, got %d", array, wordSize)
	}
	if totalSize%wordSize != 0 {
		return nil, aerr.MemoryBinding(-1, "array %q: total_size %d not divisible by word_size %d", array, totalSize, wordSize)
	}
	if numPartitions < 1 {
		return nil, aerr.MemoryBinding(-1, "array %q: num_partitions must be >= 1, got %d", array, numPartitions)
	}

	b := &Binding{
		Array:         array,
		Kind:          kind,
		PartitionType: ptype,
		NumPartitions: numPartitions,
		WordSize:      wordSize,
		TotalSize:     totalSize,
		NumPorts:      numPorts,
	}
	if kind == Scratchpad && ptype == Block {
		b.partitionSizes = blockSizes(totalSize, wordSize, numPartitions)
	}
	b.portsUsed = make([]int, numPartitions)
	b.loadCount = make([]int, numPartitions)
	b.storeCount = make([]int, numPartitions)
	if kind == DMA {
		b.ReadyBits = make([]bool, totalSize/wordSize)
	}
	return b, nil
}

// MarkReady marks word idx of a DMA binding as having landed; called by
// the scheduler when an IssueDMA store request completes (completed DMA
// loads mark nothing).
func (b *Binding) MarkReady(idx int) {
	if idx >= 0 && idx < len(b.ReadyBits) {
		b.ReadyBits[idx] = true
	}
}

// IsReady reports whether word idx of a DMA binding has landed. Always
// true for bindings with no ready-bit tracking (non-DMA kinds).
func (b *Binding) IsReady(idx int) bool {
	if len(b.ReadyBits) == 0 {
		return true
	}
	if idx < 0 || idx >= len(b.ReadyBits) {
		return false
	}
	return b.ReadyBits[idx]
}

// blockSizes divides totalSize/wordSize words across numPartitions as
// evenly as possible; the first (totalWords mod numPartitions) partitions
// get one extra word, matching spec.md §3's "may differ by at most one
// word" rule.
func blockSizes(totalSize, wordSize, numPartitions int) []int {
	totalWords := totalSize / wordSize
	base := totalWords / numPartitions
	rem := totalWords % numPartitions

	sizes := make([]int, numPartitions)
	for i := range sizes {
		words := base
		if i < rem {
			words++
		}
		sizes[i] = words * wordSize
	}
	return sizes
}

// PartitionIndex derives the partition index for a trace vaddr, per the
// formulas of spec.md §3. Register bindings have exactly one "partition"
// per element and are not addressed through this path by the scheduler,
// but the arithmetic is still well-defined (cyclic with factor =
// element count).
func (b *Binding) PartitionIndex(vaddr uint64) (int, error) {
	if vaddr < b.BaseTraceAddr {
		return 0, aerr.MemoryBinding(-1, "array %q: vaddr %#x below base %#x", b.Array, vaddr, b.BaseTraceAddr)
	}
	offset := vaddr - b.BaseTraceAddr

	switch {
	case b.Kind == Register || b.PartitionType == Cyclic:
		idx := int(offset/uint64(b.WordSize)) % b.NumPartitions
		return idx, nil
	default: // Scratchpad, Block
		cum := 0
		for i, sz := range b.partitionSizes {
			cum += sz
			if uint64(cum) > offset {
				return i, nil
			}
		}
		return 0, aerr.MemoryBinding(-1, "array %q: vaddr %#x out of bounds", b.Array, vaddr)
	}
}

// ResetPortCounters zeroes every partition's per-cycle port count; the
// scheduler calls this once per cycle, before walking the executing queue
// (spec.md §4.5 step 1: "reset per-cycle port counters on every
// scratchpad partition").
func (b *Binding) ResetPortCounters() {
	for i := range b.portsUsed {
		b.portsUsed[i] = 0
	}
}

// TryAcquirePort claims one port slot on partition idx for this cycle,
// reporting whether a port was free. Only Scratchpad bindings carry a
// port budget; other kinds always succeed.
func (b *Binding) TryAcquirePort(idx int) bool {
	if b.Kind != Scratchpad {
		return true
	}
	if idx < 0 || idx >= len(b.portsUsed) {
		return false
	}
	if b.portsUsed[idx] >= b.NumPorts {
		return false
	}
	b.portsUsed[idx]++
	return true
}

// RecordAccess increments the cumulative load or store counter for
// partition idx, for the Reporter's aggregate counts (spec.md §4.6).
func (b *Binding) RecordAccess(idx int, isLoad bool) {
	if idx < 0 {
		return
	}
	if isLoad {
		for len(b.loadCount) <= idx {
			b.loadCount = append(b.loadCount, 0)
		}
		b.loadCount[idx]++
		return
	}
	for len(b.storeCount) <= idx {
		b.storeCount = append(b.storeCount, 0)
	}
	b.storeCount[idx]++
}

// LoadCount and StoreCount return the cumulative access counts across all
// partitions, for the Reporter's per-array summary.
func (b *Binding) LoadCount() int {
	total := 0
	for _, c := range b.loadCount {
		total += c
	}
	return total
}

func (b *Binding) StoreCount() int {
	total := 0
	for _, c := range b.storeCount {
		total += c
	}
	return total
}

// Table holds every array's Binding, in the order arrays were first
// bound — the order reports iterate in.
type Table struct {
	bindings map[string]*Binding
	order    []string
}

// NewTable creates an empty Binding table.
func NewTable() *Table {
	return &Table{bindings: make(map[string]*Binding)}
}

// Bind inserts or replaces the binding for b.Array. Passes rebind an
// array in place (e.g. completePartition promoting it to Register)
// rather than creating a second entry.
func (t *Table) Bind(b *Binding) {
	if _, exists := t.bindings[b.Array]; !exists {
		t.order = append(t.order, b.Array)
	}
	t.bindings[b.Array] = b
}

// Lookup returns the binding for array, if any.
func (t *Table) Lookup(array string) (*Binding, bool) {
	b, ok := t.bindings[array]
	return b, ok
}

// Arrays returns every bound array label, in binding order.
func (t *Table) Arrays() []string {
	return append([]string(nil), t.order...)
}

// ResetPortCounters resets every bound array's per-cycle port counters;
// the scheduler calls this once at the start of each cycle.
func (t *Table) ResetPortCounters() {
	for _, array := range t.order {
		t.bindings[array].ResetPortCounters()
	}
}

// FromConfig builds initial bindings from the config directives that
// name an array directly (partition, cache, dma). Loop directives
// (flatten/unrolling/pipelining) don't touch memory binding and are
// consumed by the optimization pipeline instead.
func FromConfig(cfg *config.Config) (*Table, error) {
	t := NewTable()

	for _, d := range cfg.Partition {
		var kind Kind
		var ptype PartitionType
		numPartitions := d.Factor

		switch d.Kind {
		case config.PartitionComplete:
			kind = Register
			numPartitions = d.TotalSize / d.WordSize
		case config.PartitionCyclic:
			kind = Scratchpad
			ptype = Cyclic
		case config.PartitionBlock:
			kind = Scratchpad
			ptype = Block
		}

		b, err := New(d.Array, kind, ptype, numPartitions, d.WordSize, d.TotalSize, 1)
		if err != nil {
			return nil, err
		}
		t.Bind(b)
	}

	for _, d := range cfg.Cache {
		b, err := New(d.Array, Cache, Cyclic, 1, 1, d.Size, 1)
		if err != nil {
			return nil, err
		}
		t.Bind(b)
	}

	for _, d := range cfg.DMA {
		b, err := New(d.Array, DMA, Cyclic, 1, 1, 1, 1)
		if err != nil {
			return nil, err
		}
		t.Bind(b)
	}

	return t, nil
}
