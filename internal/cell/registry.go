package cell

import (
	"slices"

	"github.com/heatbox/extension/pkg/core"
)

// Registry owns every cell state and the per-body membership sets. A
// (body, index) pair is Flammable, Burning, or in neither set.
type Registry struct {
	occupancy map[core.Index]map[core.BodyID]*State
	flammable map[core.BodyID]*IndexSet
	burning   map[core.BodyID]*IndexSet
	bodies    []core.BodyID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		occupancy: make(map[core.Index]map[core.BodyID]*State),
		flammable: make(map[core.BodyID]*IndexSet),
		burning:   make(map[core.BodyID]*IndexSet),
	}
}

// Register adds body at idx as Flammable. A pair already present is left
// untouched and reported as false.
func (r *Registry) Register(body core.BodyID, idx core.Index, p core.Params) bool {
	cells, ok := r.occupancy[idx]
	if !ok {
		cells = make(map[core.BodyID]*State)
		r.occupancy[idx] = cells
	}
	if _, exists := cells[body]; exists {
		return false
	}
	cells[body] = NewState(p)

	if _, known := r.flammable[body]; !known {
		r.flammable[body] = NewIndexSet()
		r.burning[body] = NewIndexSet()
		r.bodies = append(r.bodies, body)
	}
	r.flammable[body].Add(idx)
	return true
}

// IsRegistered reports whether body was ever registered and not cleared.
func (r *Registry) IsRegistered(body core.BodyID) bool {
	_, ok := r.flammable[body]
	return ok
}

// Bodies returns registered bodies in registration order.
func (r *Registry) Bodies() []core.BodyID {
	return slices.Clone(r.bodies)
}

// State returns the state of body at idx.
func (r *Registry) State(body core.BodyID, idx core.Index) (*State, bool) {
	s, ok := r.occupancy[idx][body]
	return s, ok
}

// BodiesAt lists the bodies occupying idx.
func (r *Registry) BodiesAt(idx core.Index) []core.BodyID {
	cells := r.occupancy[idx]
	out := make([]core.BodyID, 0, len(cells))
	for b := range cells {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

// Occupied reports whether any body occupies idx.
func (r *Registry) Occupied(idx core.Index) bool {
	return len(r.occupancy[idx]) > 0
}

// Flammable returns the flammable set of body, or nil.
func (r *Registry) Flammable(body core.BodyID) *IndexSet {
	return r.flammable[body]
}

// Burning returns the burning set of body, or nil.
func (r *Registry) Burning(body core.BodyID) *IndexSet {
	return r.burning[body]
}

// Ignite moves idx from the flammable to the burning set.
func (r *Registry) Ignite(body core.BodyID, idx core.Index) {
	if r.flammable[body].Remove(idx) {
		r.burning[body].Add(idx)
	}
}

// Extinguish moves idx from the burning back to the flammable set.
func (r *Registry) Extinguish(body core.BodyID, idx core.Index) {
	if r.burning[body].Remove(idx) {
		r.flammable[body].Add(idx)
	}
}

// BurnOut drops idx from the burning set for good. Its state stays readable.
func (r *Registry) BurnOut(body core.BodyID, idx core.Index) {
	r.burning[body].Remove(idx)
}

// Deregister removes the pair entirely and prunes the cell entry once empty.
func (r *Registry) Deregister(body core.BodyID, idx core.Index) {
	if set := r.flammable[body]; set != nil {
		set.Remove(idx)
	}
	if set := r.burning[body]; set != nil {
		set.Remove(idx)
	}
	cells, ok := r.occupancy[idx]
	if !ok {
		return
	}
	delete(cells, body)
	if len(cells) == 0 {
		delete(r.occupancy, idx)
	}
}

// EachActive visits the flammable cells of body, then its burning cells.
func (r *Registry) EachActive(body core.BodyID, fn func(idx core.Index, s *State)) {
	for _, set := range []*IndexSet{r.flammable[body], r.burning[body]} {
		if set == nil {
			continue
		}
		for _, idx := range set.Items() {
			if s, ok := r.occupancy[idx][body]; ok {
				fn(idx, s)
			}
		}
	}
}

// Active returns the states of body across its flammable and burning cells.
func (r *Registry) Active(body core.BodyID) []*State {
	var out []*State
	r.EachActive(body, func(_ core.Index, s *State) {
		out = append(out, s)
	})
	return out
}

// BurntOut reports whether body has cells but none remain flammable or burning.
func (r *Registry) BurntOut(body core.BodyID) bool {
	f, b := r.flammable[body], r.burning[body]
	return f != nil && f.Len() == 0 && b.Len() == 0
}

// Cells counts occupied indices.
func (r *Registry) Cells() int {
	return len(r.occupancy)
}

// Clear drops every state and membership.
func (r *Registry) Clear() {
	clear(r.occupancy)
	clear(r.flammable)
	clear(r.burning)
	r.bodies = nil
}
