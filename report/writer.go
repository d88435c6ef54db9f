package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/aladdin/graph"
	"github.com/sarchlab/aladdin/node"
)

var titleCaser = cases.Title(language.English)

// Writer emits the fixed set of output files spec.md §6 names for one
// benchmark run: "<bench>_stats.txt", "<bench>_summary", a per-cycle
// activity CSV, and the optional Graphviz DDDG dump and YAML summary.
type Writer struct {
	Dir       string
	Benchmark string
}

func NewWriter(dir, benchmark string) *Writer {
	return &Writer{Dir: dir, Benchmark: benchmark}
}

func (w *Writer) path(suffix string) string {
	return filepath.Join(w.Dir, w.Benchmark+suffix)
}

// WriteAll renders the stats table, summary, activity CSV and YAML
// summary, plus the DDDG dot dump when g is non-nil, matching the
// reference's one-call-does-everything entry point. It writes no SQL
// row; that is WriteSQLRow's job.
func (w *Writer) WriteAll(s *Stats, er EnergyReport, g *graph.Graph) error {
	if err := w.writeToFile(w.path("_stats.txt"), func(out io.Writer) error {
		WriteStatsTable(out, s)
		return nil
	}); err != nil {
		return err
	}

	if err := w.writeToFile(w.path("_summary"), func(out io.Writer) error {
		WriteSummary(out, s, er)
		return nil
	}); err != nil {
		return err
	}

	if err := w.writeToFile(w.path("_activity.csv"), func(out io.Writer) error {
		return WriteActivityCSV(out, s)
	}); err != nil {
		return err
	}

	if err := w.writeToFile(w.path("_summary.yaml"), func(out io.Writer) error {
		return WriteYAML(out, s, er)
	}); err != nil {
		return err
	}

	if g != nil {
		if err := w.writeToFile(w.path(".dot"), func(out io.Writer) error {
			return WriteDot(out, g)
		}); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) writeToFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	return render(f)
}

// WriteStatsTable renders the per-cycle functional-unit activity table
// and per-array access counts, in the go-pretty tabular style the
// reference uses for every state dump.
func WriteStatsTable(out io.Writer, s *Stats) {
	ops := sortedOps(s.ActivationsByOp())

	activityTable := table.NewWriter()
	activityTable.SetOutputMirror(out)
	activityTable.SetTitle(fmt.Sprintf("%s: functional-unit activations", s.Benchmark))

	header := table.Row{"Cycle"}
	for _, op := range ops {
		header = append(header, titleCaser.String(strings.ToLower(op.String())))
	}
	activityTable.AppendHeader(header)

	for _, cyc := range s.Activity {
		row := make(table.Row, 0, len(ops)+1)
		row = append(row, cyc.Cycle)
		for _, op := range ops {
			row = append(row, cyc.Counts[op])
		}
		activityTable.AppendRow(row)
	}
	activityTable.Render()
	fmt.Fprintln(out)

	arrayTable := table.NewWriter()
	arrayTable.SetOutputMirror(out)
	arrayTable.SetTitle(fmt.Sprintf("%s: per-array access counts", s.Benchmark))
	arrayTable.AppendHeader(table.Row{"Array", "Loads", "Stores"})
	for _, array := range sortedKeys(s.arrayLoads, s.arrayStores) {
		arrayTable.AppendRow(table.Row{array, s.arrayLoads[array], s.arrayStores[array]})
	}
	arrayTable.Render()
}

// WriteSummary renders the plain-text "<bench>_summary" file: total
// cycles, aggregate access counts, and the derived energy/area figures.
func WriteSummary(out io.Writer, s *Stats, er EnergyReport) {
	fmt.Fprintf(out, "Benchmark: %s\n", s.Benchmark)
	fmt.Fprintf(out, "Cycles: %d\n", s.TotalCycles)
	fmt.Fprintf(out, "Loads: %d\n", s.Loads)
	fmt.Fprintf(out, "Stores: %d\n", s.Stores)
	fmt.Fprintf(out, "DMA bytes: %d\n", s.DMABytes)
	fmt.Fprintf(out, "Dynamic energy: %.3f pJ\n", er.DynamicEnergyPJ)
	fmt.Fprintf(out, "Leakage: %.3f pJ\n", er.LeakagePJ)
	fmt.Fprintf(out, "Area: %.3f um^2\n", er.AreaUM2)
}

// WriteActivityCSV renders one row per cycle, one column per microop
// class observed anywhere in the run — the per-cycle activity CSV of
// spec.md §6's output list.
func WriteActivityCSV(out io.Writer, s *Stats) error {
	ops := sortedOps(s.ActivationsByOp())

	cw := csv.NewWriter(out)
	header := make([]string, 0, len(ops)+1)
	header = append(header, "cycle")
	for _, op := range ops {
		header = append(header, op.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, cyc := range s.Activity {
		row := make([]string, 0, len(ops)+1)
		row = append(row, strconv.FormatInt(cyc.Cycle, 10))
		for _, op := range ops {
			row = append(row, strconv.Itoa(cyc.Counts[op]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// yamlSummary is the shape WriteYAML marshals; field names match the
// reference's lower_snake_case yaml tags.
type yamlSummary struct {
	Benchmark       string         `yaml:"benchmark"`
	Cycles          int64          `yaml:"cycles"`
	Loads           int            `yaml:"loads"`
	Stores          int            `yaml:"stores"`
	DMABytes        int64          `yaml:"dma_bytes"`
	DynamicEnergyPJ float64        `yaml:"dynamic_energy_pj"`
	LeakagePJ       float64        `yaml:"leakage_pj"`
	AreaUM2         float64        `yaml:"area_um2"`
	Arrays          []yamlArrayRow `yaml:"arrays"`
}

type yamlArrayRow struct {
	Array  string `yaml:"array"`
	Loads  int    `yaml:"loads"`
	Stores int    `yaml:"stores"`
}

// WriteYAML renders the optional "<bench>_summary.yaml" output.
func WriteYAML(out io.Writer, s *Stats, er EnergyReport) error {
	sum := yamlSummary{
		Benchmark:       s.Benchmark,
		Cycles:          s.TotalCycles,
		Loads:           s.Loads,
		Stores:          s.Stores,
		DMABytes:        s.DMABytes,
		DynamicEnergyPJ: er.DynamicEnergyPJ,
		LeakagePJ:       er.LeakagePJ,
		AreaUM2:         er.AreaUM2,
	}
	for _, array := range sortedKeys(s.arrayLoads, s.arrayStores) {
		sum.Arrays = append(sum.Arrays, yamlArrayRow{
			Array: array, Loads: s.arrayLoads[array], Stores: s.arrayStores[array],
		})
	}

	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(sum)
}

// WriteDot renders the optional Graphviz dump of the DDDG: one node per
// execution node, labeled with its microop, and one edge per graph
// edge, labeled with its operand slot or synthetic edge kind.
func WriteDot(out io.Writer, g *graph.Graph) error {
	fmt.Fprintln(out, "digraph dddg {")
	for _, n := range g.Nodes() {
		fmt.Fprintf(out, "  n%d [label=\"%d: %s\"];\n", n.ID, n.ID, n.Microop)
	}
	for _, n := range g.Nodes() {
		for _, e := range g.OutEdges(n.ID) {
			fmt.Fprintf(out, "  n%d -> n%d [label=\"%s\"];\n", e.From, e.To, edgeLabel(e.Param))
		}
	}
	fmt.Fprintln(out, "}")
	return nil
}

func edgeLabel(param int) string {
	switch param {
	case graph.ControlEdge:
		return "control"
	case graph.RegisterEdge:
		return "register"
	case graph.MemoryEdge:
		return "memory"
	case graph.FusedBranchEdge:
		return "fused_branch"
	default:
		return fmt.Sprintf("operand%d", param)
	}
}

func sortedOps(counts map[node.Microop]int) []node.Microop {
	ops := make([]node.Microop, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func sortedKeys(a, b map[string]int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
