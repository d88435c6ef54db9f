package config

import (
	"strings"
	"testing"
)

func TestLoadParsesEveryDirective(t *testing.T) {
	src := strings.Join([]string{
		"# comment line, ignored",
		"flatten,triad,loop1",
		"unrolling,triad,loop1,2",
		"partition,cyclic,a,1024,8,2",
		"pipelining,triad,loop1,1",
		"cache,c,4096",
		"dma,b",
		"cycle_time,1.25",
	}, "\n") + "\n"

	cfg, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.IsFlattened("triad", "loop1") {
		t.Error("want loop1 flattened")
	}
	if f := cfg.UnrollFactor("triad", "loop1"); f != 2 {
		t.Errorf("want unroll factor 2, got %d", f)
	}
	if ii, ok := cfg.Pipelined("triad", "loop1"); !ok || ii != 1 {
		t.Errorf("want pipelined with II=1, got ii=%d ok=%v", ii, ok)
	}
	if len(cfg.Partition) != 1 || cfg.Partition[0].Kind != PartitionCyclic || cfg.Partition[0].Factor != 2 {
		t.Errorf("partition mismatch: %+v", cfg.Partition)
	}
	if len(cfg.Cache) != 1 || cfg.Cache[0].Array != "c" {
		t.Errorf("cache mismatch: %+v", cfg.Cache)
	}
	if len(cfg.DMA) != 1 || cfg.DMA[0].Array != "b" {
		t.Errorf("dma mismatch: %+v", cfg.DMA)
	}
	if cfg.CycleTimeNS != 1.25 {
		t.Errorf("want cycle_time 1.25, got %v", cfg.CycleTimeNS)
	}
}

func TestLoadRejectsOversizedPartition(t *testing.T) {
	_, err := Load(strings.NewReader("partition,cyclic,a,16,8,4\n"))
	if err == nil {
		t.Fatal("want error: factor*word_size > total_size")
	}
}

func TestLoadRejectsUnknownDirective(t *testing.T) {
	_, err := Load(strings.NewReader("bogus,1,2\n"))
	if err == nil {
		t.Fatal("want error for unknown directive")
	}
}

func TestUnrollFactorDefaultsToOne(t *testing.T) {
	cfg := Default()
	if f := cfg.UnrollFactor("f", "loop"); f != 1 {
		t.Errorf("want default factor 1, got %d", f)
	}
}

func TestBuilderChaining(t *testing.T) {
	cfg := NewBuilder().
		WithCycleTime(2.0).
		WithUnroll("f", "l", 4).
		WithPartition(PartitionBlock, "arr", 256, 8, 4).
		Build()

	if cfg.CycleTimeNS != 2.0 {
		t.Errorf("want cycle time 2.0, got %v", cfg.CycleTimeNS)
	}
	if cfg.UnrollFactor("f", "l") != 4 {
		t.Errorf("want unroll factor 4, got %d", cfg.UnrollFactor("f", "l"))
	}
}
