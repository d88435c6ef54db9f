package report

import (
	"github.com/sarchlab/aladdin/energy"
	"github.com/sarchlab/aladdin/membind"
)

// EnergyReport is the Reporter's derived power/area summary of spec.md
// §4.6/§9: total dynamic energy across every memory access and
// functional-unit activation, static leakage over the run's duration,
// and total area.
type EnergyReport struct {
	DynamicEnergyPJ float64
	LeakagePJ       float64
	AreaUM2         float64

	PerArray map[string]energy.Estimate
}

// functionalUnitWordBytes is the word width assumed for non-memory
// functional-unit classes (adders, multipliers, shifters, the special
// math unit) when pricing them through the same Model memory entities
// use; spec.md's microops are all scalar 32-bit ALU/FP operations.
const functionalUnitWordBytes = 4

// DeriveEnergy multiplies Stats' per-array access counts and
// functional-unit activation counts by the per-op costs model m,
// per spec.md §4.6 ("derived energy by multiplying activity by per-op
// energy from the analytical model").
func DeriveEnergy(s *Stats, bindings *membind.Table, m energy.Model, cycleTimeNS float64) EnergyReport {
	rep := EnergyReport{PerArray: make(map[string]energy.Estimate)}

	for _, array := range bindings.Arrays() {
		b, ok := bindings.Lookup(array)
		if !ok {
			continue
		}
		est := m(energy.Access{
			CapacityBytes: b.TotalSize,
			WordSizeBytes: b.WordSize,
			Ports:         b.NumPorts,
		})
		rep.PerArray[array] = est
		rep.DynamicEnergyPJ += est.ReadEnergyPJ*float64(b.LoadCount()) + est.WriteEnergyPJ*float64(b.StoreCount())
		rep.AreaUM2 += est.AreaUM2
		rep.LeakagePJ += est.LeakageMW * cycleTimeNS * float64(s.TotalCycles)
	}

	for op, activations := range s.ActivationsByOp() {
		if op.IsMemory() {
			continue // priced through the per-array costs above
		}
		perActivation := energy.FunctionalUnitEnergy(m, functionalUnitWordBytes)
		rep.DynamicEnergyPJ += perActivation * float64(activations)
		rep.AreaUM2 += m(energy.Access{
			CapacityBytes: functionalUnitWordBytes,
			WordSizeBytes: functionalUnitWordBytes,
			Ports:         1,
		}).AreaUM2
	}

	return rep
}
