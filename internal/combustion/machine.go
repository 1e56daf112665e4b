// Package combustion drives the per-cell state transitions of the pre-update phase.
package combustion

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/pkg/core"
)

// Status is the combustion state of a (body, index) pair.
type Status uint8

const (
	Unregistered Status = iota
	Flammable
	Burning
	BurntOut
	Extinguished
)

func (s Status) String() string {
	switch s {
	case Flammable:
		return "Flammable"
	case Burning:
		return "Burning"
	case BurntOut:
		return "BurntOut"
	case Extinguished:
		return "Extinguished"
	}
	return "Unregistered"
}

// Body tags pushed to the host's collision/visual layer.
const (
	TagFlammable = "Flammable"
	TagBurning   = "Burning"
	TagBurntOut  = "BurntOut"
)

// Sampler returns at most one surface point of body near idx per call.
type Sampler interface {
	Sample(body core.BodyID, idx core.Index) (mgl64.Vec3, bool)
}

// Tagger marks bodies for the host.
type Tagger interface {
	Tag(body core.BodyID, tag string)
	Untag(body core.BodyID, tag string)
}

// Quota bounds the per-tick hit sampling of one burning cell.
type Quota struct {
	Required  int
	Tolerance int
}

// DefaultQuota returns the process-wide sampling quota.
func DefaultQuota() Quota {
	return Quota{Required: core.HitQueryRequired, Tolerance: core.HitQueryTolerance}
}

// Transition records a single state change.
type Transition struct {
	Body  core.BodyID
	Index core.Index
	From  Status
	To    Status
}

// Result summarizes one pre-update pass.
type Result struct {
	Transitions []Transition
	GaveUp      []Transition
	Samples     int
}

// Machine evaluates state transitions over a registry.
type Machine struct {
	reg     *cell.Registry
	sampler Sampler
	tagger  Tagger
	quota   Quota
	logger  *slog.Logger
}

// Dependencies holds the collaborators of a Machine.
type Dependencies struct {
	Registry *cell.Registry
	Sampler  Sampler
	Tagger   Tagger
	Quota    Quota
	Logger   *slog.Logger
}

// New creates a Machine. A nil sampler yields no samples; a nil tagger is skipped.
func New(deps Dependencies) *Machine {
	if deps.Quota == (Quota{}) {
		deps.Quota = DefaultQuota()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Machine{
		reg:     deps.Registry,
		sampler: deps.Sampler,
		tagger:  deps.Tagger,
		quota:   deps.Quota,
		logger:  deps.Logger,
	}
}

// PreUpdate runs one transition pass. Membership is snapshotted before each
// scan so moves made during the pass never change what it visits.
func (m *Machine) PreUpdate() Result {
	var res Result
	bodies := m.reg.Bodies()

	for _, body := range bodies {
		for _, idx := range m.reg.Flammable(body).Items() {
			state, ok := m.reg.State(body, idx)
			if !ok || !state.IsIgnitionStarting() {
				continue
			}
			m.ignite(body, idx, state)
			res.Transitions = append(res.Transitions, Transition{body, idx, Flammable, Burning})
		}
	}

	for _, body := range bodies {
		for _, idx := range m.reg.Burning(body).Items() {
			state, ok := m.reg.State(body, idx)
			if !ok {
				continue
			}
			switch {
			case state.IsBurntOut():
				state.Burning = false
				m.reg.BurnOut(body, idx)
				res.Transitions = append(res.Transitions, Transition{body, idx, Burning, BurntOut})
				m.logger.Debug("Cell burnt out", "body", body, "index", idx)
				m.untagIfNone(body, m.reg.Burning(body), TagBurning)
				if m.reg.BurntOut(body) {
					m.tag(body, TagBurntOut)
				}
			case state.IsExtinguished():
				state.Burning = false
				m.reg.Extinguish(body, idx)
				res.Transitions = append(res.Transitions, Transition{body, idx, Burning, Extinguished})
				m.logger.Debug("Cell extinguished", "body", body, "index", idx)
				m.tag(body, TagFlammable)
				m.untagIfNone(body, m.reg.Burning(body), TagBurning)
			default:
				n, ok := m.sample(body, idx, state)
				res.Samples += n
				if !ok {
					res.GaveUp = append(res.GaveUp, Transition{body, idx, Burning, Unregistered})
					m.untagIfNone(body, m.reg.Burning(body), TagBurning)
				}
			}
		}
	}
	return res
}

func (m *Machine) ignite(body core.BodyID, idx core.Index, state *cell.State) {
	state.Burning = true
	state.HitBudget = m.quota.Required
	m.reg.Ignite(body, idx)
	m.tag(body, TagBurning)
	m.untagIfNone(body, m.reg.Flammable(body), TagFlammable)
	m.logger.Debug("Cell ignited", "body", body, "index", idx, "temperature", state.Temperature)
}

// sample draws hit points until the budget is spent. Running out of attempts
// drops the pair from the registry and reports false.
func (m *Machine) sample(body core.BodyID, idx core.Index, state *cell.State) (int, bool) {
	if m.sampler == nil {
		return 0, true
	}

	got := 0
	for attempts := 0; state.HitBudget > 0; attempts++ {
		if attempts >= m.quota.Tolerance {
			m.reg.Deregister(body, idx)
			m.logger.Warn("Hit sampling gave up, cell deregistered",
				"body", body, "index", idx, "attempts", attempts, "remaining", state.HitBudget)
			return got, false
		}
		p, ok := m.sampler.Sample(body, idx)
		if !ok {
			continue
		}
		state.AddHitPoint(p)
		state.HitBudget--
		got++
	}
	return got, true
}

func (m *Machine) tag(body core.BodyID, tag string) {
	if m.tagger != nil {
		m.tagger.Tag(body, tag)
	}
}

// untagIfNone drops tag once set has emptied.
func (m *Machine) untagIfNone(body core.BodyID, set *cell.IndexSet, tag string) {
	if m.tagger != nil && (set == nil || set.Len() == 0) {
		m.tagger.Untag(body, tag)
	}
}

// StatusOf reports the current status of a (body, index) pair.
func StatusOf(reg *cell.Registry, body core.BodyID, idx core.Index) Status {
	if reg.Burning(body) != nil && reg.Burning(body).Contains(idx) {
		return Burning
	}
	if reg.Flammable(body) != nil && reg.Flammable(body).Contains(idx) {
		return Flammable
	}
	if _, ok := reg.State(body, idx); ok {
		return BurntOut
	}
	return Unregistered
}
