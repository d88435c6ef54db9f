package scheduler

import "github.com/sarchlab/akita/v4/sim"

// Ticking wraps a Scheduler as an akita TickingComponent, one Step per
// tick, so integration runs can drive the datapath engine on the same
// event loop as a Simulated memory interface (spec.md §9's "gem5-like
// co-simulator for integration tests"). Unit tests should call
// Scheduler.Step directly instead; Ticking only exists to put the
// scheduler on an akita sim.Engine's clock.
type Ticking struct {
	*sim.TickingComponent

	sched *Scheduler
	err   error
}

// NewTicking builds a Ticking component wrapping sched, driven by engine
// at freq, following the construction idiom of core.Builder.Build.
func NewTicking(name string, engine sim.Engine, freq sim.Freq, sched *Scheduler) *Ticking {
	t := &Ticking{sched: sched}
	t.TickingComponent = sim.NewTickingComponent(name, engine, freq, t)
	return t
}

// Err returns the fatal error raised by the wrapped Scheduler's Step, if
// any; the caller should check this once ticking stops.
func (t *Ticking) Err() error { return t.err }

// Tick implements sim.TickingComponent's handler: one Step per tick,
// reporting progress until the schedule completes or errors out.
func (t *Ticking) Tick(_ sim.VTimeInSec) (madeProgress bool) {
	if t.sched.Done() || t.err != nil {
		return false
	}
	if err := t.sched.Step(); err != nil {
		t.err = err
		return false
	}
	return true
}
