// Package config parses the line-oriented optimization-directive format
// of spec.md §6 into a typed Config: which loops to flatten, unroll, or
// pipeline, which arrays to partition and how, which arrays are
// cache- or DMA-backed, and the target cycle time.
package config

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/aladdin/aerr"
)

// PartitionKind is the closed set of partition types a "partition" line
// can request.
type PartitionKind int

const (
	PartitionCyclic PartitionKind = iota
	PartitionBlock
	PartitionComplete
)

func (k PartitionKind) String() string {
	switch k {
	case PartitionCyclic:
		return "cyclic"
	case PartitionBlock:
		return "block"
	case PartitionComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// FlattenDirective requests that a labeled loop's back-edges be removed
// by the loopFlatten pass.
type FlattenDirective struct {
	Function string
	Label    string
}

// UnrollDirective requests that a labeled loop be unrolled by Factor.
type UnrollDirective struct {
	Function string
	Label    string
	Factor   int
}

// PipeliningDirective requests that a labeled loop be software-pipelined.
// II is the initiation interval; 0 means "compute a default" (Design
// Notes, Open Question 3).
type PipeliningDirective struct {
	Function string
	Label    string
	II       int
}

// PartitionDirective requests that Array be bound to a partitioned
// memory entity. WordSize and TotalSize are in bytes; Factor is the
// number of partitions (ignored, and implied 1-per-element, for
// PartitionComplete).
type PartitionDirective struct {
	Kind      PartitionKind
	Array     string
	TotalSize int
	WordSize  int
	Factor    int
}

// CacheDirective binds Array to a cache of the given size in bytes; the
// remaining cache parameters (line size, associativity, bandwidth) come
// from the global config fields below.
type CacheDirective struct {
	Array string
	Size  int
}

// DMADirective binds Array as DMA-backed external memory.
type DMADirective struct {
	Array string
}

// Config is the fully parsed set of optimization directives for one run.
type Config struct {
	Flatten    []FlattenDirective
	Unroll     []UnrollDirective
	Pipelining []PipeliningDirective
	Partition  []PartitionDirective
	Cache      []CacheDirective
	DMA        []DMADirective

	CycleTimeNS float64

	// Global cache parameters, set independently of any per-array
	// directive; Default seeds them with baseline values (32-byte lines,
	// 4-way associativity, 10 GB/s).
	CacheLineSize    int
	CacheAssoc       int
	CacheBandwidthGB float64
}

// Default returns a Config with the reference's baseline cycle time and
// cache geometry; Load starts from this and overlays directives.
func Default() Config {
	return Config{
		CycleTimeNS:      6.0,
		CacheLineSize:    32,
		CacheAssoc:       4,
		CacheBandwidthGB: 10,
	}
}

// IsFlattened reports whether (function, label) has a flatten directive.
func (c *Config) IsFlattened(function, label string) bool {
	for _, d := range c.Flatten {
		if d.Function == function && d.Label == label {
			return true
		}
	}
	return false
}

// UnrollFactor returns the requested unroll factor for (function, label),
// or 1 (no unrolling) if none was requested.
func (c *Config) UnrollFactor(function, label string) int {
	for _, d := range c.Unroll {
		if d.Function == function && d.Label == label {
			return d.Factor
		}
	}
	return 1
}

// Pipelined reports whether (function, label) has a pipelining directive,
// and returns its requested II (0 if unspecified).
func (c *Config) Pipelined(function, label string) (int, bool) {
	for _, d := range c.Pipelining {
		if d.Function == function && d.Label == label {
			return d.II, true
		}
	}
	return 0, false
}

// Builder assembles a Config with the teacher's chainable-method style
// (config.Builder{}.WithCycleTime(...).Build()), for callers that
// construct directives programmatically instead of parsing a file.
type Builder struct {
	cfg Config
}

// NewBuilder starts from Default().
func NewBuilder() Builder {
	return Builder{cfg: Default()}
}

func (b Builder) WithCycleTime(ns float64) Builder {
	b.cfg.CycleTimeNS = ns
	return b
}

func (b Builder) WithFlatten(function, label string) Builder {
	b.cfg.Flatten = append(b.cfg.Flatten, FlattenDirective{function, label})
	return b
}

func (b Builder) WithUnroll(function, label string, factor int) Builder {
	b.cfg.Unroll = append(b.cfg.Unroll, UnrollDirective{function, label, factor})
	return b
}

func (b Builder) WithPipelining(function, label string, ii int) Builder {
	b.cfg.Pipelining = append(b.cfg.Pipelining, PipeliningDirective{function, label, ii})
	return b
}

func (b Builder) WithPartition(kind PartitionKind, array string, totalSize, wordSize, factor int) Builder {
	b.cfg.Partition = append(b.cfg.Partition, PartitionDirective{kind, array, totalSize, wordSize, factor})
	return b
}

func (b Builder) WithCache(array string, size int) Builder {
	b.cfg.Cache = append(b.cfg.Cache, CacheDirective{array, size})
	return b
}

func (b Builder) WithDMA(array string) Builder {
	b.cfg.DMA = append(b.cfg.DMA, DMADirective{array})
	return b
}

// Build returns the assembled Config.
func (b Builder) Build() Config { return b.cfg }

// Load parses the line-oriented directive format of spec.md §6.
//
//	flatten,function,label
//	unrolling,function,label,factor
//	partition,type,array,total_size,word_size,factor
//	pipelining,function,label[,II]
//	cache,array,size
//	dma,array
//	cycle_time,ns
//
// Blank lines and lines starting with '#' are ignored.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	sc := bufio.NewScanner(r)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		if err := applyDirective(&cfg, line, fields); err != nil {
			return Config{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, aerr.Config(line, "read error: %v", err)
	}
	return cfg, nil
}

func applyDirective(cfg *Config, line int, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "flatten":
		if len(fields) != 3 {
			return aerr.Config(line, "flatten: want 2 fields, got %d", len(fields)-1)
		}
		cfg.Flatten = append(cfg.Flatten, FlattenDirective{Function: fields[1], Label: fields[2]})

	case "unrolling":
		if len(fields) != 4 {
			return aerr.Config(line, "unrolling: want 3 fields, got %d", len(fields)-1)
		}
		factor, err := strconv.Atoi(fields[3])
		if err != nil || factor < 1 {
			return aerr.Config(line, "unrolling: bad factor %q", fields[3])
		}
		cfg.Unroll = append(cfg.Unroll, UnrollDirective{Function: fields[1], Label: fields[2], Factor: factor})

	case "partition":
		if len(fields) != 6 {
			return aerr.Config(line, "partition: want 5 fields, got %d", len(fields)-1)
		}
		kind, err := parsePartitionKind(fields[1])
		if err != nil {
			return aerr.Config(line, "partition: %v", err)
		}
		totalSize, err1 := strconv.Atoi(fields[3])
		wordSize, err2 := strconv.Atoi(fields[4])
		factor, err3 := strconv.Atoi(fields[5])
		if err1 != nil || err2 != nil || err3 != nil {
			return aerr.Config(line, "partition: non-numeric size/word_size/factor")
		}
		if factor >= 1 && wordSize >= 1 && factor*wordSize > totalSize {
			return aerr.Config(line, "partition %s: factor(%d) x word_size(%d) > total_size(%d)",
				fields[2], factor, wordSize, totalSize)
		}
		cfg.Partition = append(cfg.Partition, PartitionDirective{
			Kind: kind, Array: fields[2], TotalSize: totalSize, WordSize: wordSize, Factor: factor,
		})

	case "pipelining":
		if len(fields) != 3 && len(fields) != 4 {
			return aerr.Config(line, "pipelining: want 2 or 3 fields, got %d", len(fields)-1)
		}
		ii := 0
		if len(fields) == 4 {
			v, err := strconv.Atoi(fields[3])
			if err != nil {
				return aerr.Config(line, "pipelining: bad II %q", fields[3])
			}
			ii = v
		}
		cfg.Pipelining = append(cfg.Pipelining, PipeliningDirective{Function: fields[1], Label: fields[2], II: ii})

	case "cache":
		if len(fields) != 3 {
			return aerr.Config(line, "cache: want 2 fields, got %d", len(fields)-1)
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			return aerr.Config(line, "cache: bad size %q", fields[2])
		}
		cfg.Cache = append(cfg.Cache, CacheDirective{Array: fields[1], Size: size})

	case "dma":
		if len(fields) != 2 {
			return aerr.Config(line, "dma: want 1 field, got %d", len(fields)-1)
		}
		cfg.DMA = append(cfg.DMA, DMADirective{Array: fields[1]})

	case "cycle_time":
		if len(fields) != 2 {
			return aerr.Config(line, "cycle_time: want 1 field, got %d", len(fields)-1)
		}
		ns, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return aerr.Config(line, "cycle_time: bad value %q", fields[1])
		}
		cfg.CycleTimeNS = ns

	default:
		return aerr.Config(line, "unknown directive %q", fields[0])
	}
	return nil
}

func parsePartitionKind(s string) (PartitionKind, error) {
	switch s {
	case "cyclic":
		return PartitionCyclic, nil
	case "block":
		return PartitionBlock, nil
	case "complete":
		return PartitionComplete, nil
	default:
		return 0, aerr.Config(0, "unknown partition type %q", s)
	}
}
