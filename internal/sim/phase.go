package sim

import (
	"sort"
	"time"
)

// Phase orders work within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // apply queued host commands
	PhasePreUpdate               // state transitions
	PhaseUpdate                  // aggregation, radiation, diffusion
	PhasePostUpdate              // fuel decay, smoothing, events
	PhaseOutput                  // listener notification
	PhaseCleanup                 // host-side visual bookkeeping
)

// System is a unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// SystemFunc adapts a function to System.
type SystemFunc struct {
	At Phase
	Fn func(dt time.Duration)
}

func (s SystemFunc) Phase() Phase { return s.At }
func (s SystemFunc) Update(dt time.Duration) { s.Fn(dt) }

// Runner executes systems in phase order. Systems of the same phase keep
// their registration order.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

// TickPhase runs only the systems of one phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// TickFrom runs the systems of phase from and every later phase.
func (r *Runner) TickFrom(from Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() >= from {
			s.Update(dt)
		}
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
