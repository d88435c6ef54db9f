// Command aladdin is the datapath-engine CLI: it turns a gzip-compressed
// dynamic instruction trace plus an optimization-directive config file
// into a scheduled DDDG and the Reporter's fixed output files, per
// spec.md §6's external interfaces.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/aladdin/aerr"
	"github.com/sarchlab/aladdin/config"
	"github.com/sarchlab/aladdin/dddg"
	"github.com/sarchlab/aladdin/energy"
	"github.com/sarchlab/aladdin/membind"
	"github.com/sarchlab/aladdin/memif"
	"github.com/sarchlab/aladdin/passes"
	"github.com/sarchlab/aladdin/report"
	"github.com/sarchlab/aladdin/scheduler"
	"github.com/sarchlab/aladdin/trace"
)

func main() {
	var (
		tracePath  = flag.String("trace", "", "path to the gzip-compressed dynamic instruction trace")
		configPath = flag.String("config", "", "path to the optimization-directive config file")
		benchmark  = flag.String("bench", "kernel", "benchmark name, used as the output file prefix")
		outDir     = flag.String("out", ".", "directory to write report output files into")
		deadlock   = flag.Int("deadlock-threshold", 1000, "cycles without progress before the run aborts")
	)
	flag.Parse()

	if *tracePath == "" || *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: aladdin -trace <trace.gz> -config <config> [-bench name] [-out dir]")
		atexit.Exit(1)
	}

	if err := run(*tracePath, *configPath, *benchmark, *outDir, *deadlock); err != nil {
		slog.Error("run failed", "error", err)
		atexit.Exit(aerr.ExitCode(err))
	}
	atexit.Exit(0)
}

func run(tracePath, configPath, benchmark, outDir string, deadlockThreshold int) error {
	traceFile, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer traceFile.Close()

	reader, err := trace.Open(traceFile)
	if err != nil {
		return err
	}

	built, err := dddg.Build(reader)
	if err != nil {
		return err
	}
	slog.Info("trace built", "nodes", built.Graph.NumNodes())

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer configFile.Close()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	bindings, err := membind.FromConfig(&cfg)
	if err != nil {
		return err
	}

	if err := passes.Default().Run(built.Graph, &cfg, bindings, built.Entities); err != nil {
		return err
	}
	slog.Info("optimization pipeline complete")

	sched := scheduler.New(built.Graph, bindings, memif.NewMock())
	sched.DeadlockThreshold = deadlockThreshold

	stats := report.NewStats(benchmark)
	sched.OnCycle = stats.Observe(built.Graph)

	cycles, err := scheduler.Run(sched)
	if err != nil {
		return err
	}
	slog.Info("schedule complete", "cycles", cycles)

	report.Collect(stats, built.Graph, bindings, cycles)
	energyReport := report.DeriveEnergy(stats, bindings, energy.DefaultTable, cfg.CycleTimeNS)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	writer := report.NewWriter(outDir, benchmark)
	if err := writer.WriteAll(stats, energyReport, built.Graph); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
