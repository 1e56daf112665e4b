package sim

import (
	"fmt"

	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/internal/combustion"
	"github.com/heatbox/extension/internal/lifecycle"
	"github.com/heatbox/extension/pkg/core"
)

// Overlap is one (body, cell) pair reported by the host.
type Overlap struct {
	Body   core.BodyID
	Index  core.Index
	Params core.Params
}

// RegistrationFeed supplies the pairs currently overlapping grid cells.
type RegistrationFeed interface {
	Overlaps() []Overlap
}

// Register adds body at idx as Flammable. Registering an existing pair is a no-op.
func (s *Simulation) Register(body core.BodyID, idx core.Index, p core.Params) error {
	if !s.cfg.Dims.Contains(idx) {
		return fmt.Errorf("register %s at %v: %w", body, idx, ErrOutOfBounds)
	}
	if s.reg.Register(body, idx, p) && s.tagger != nil {
		s.tagger.Tag(body, combustion.TagFlammable)
	}
	return nil
}

// RegisterFrom registers every in-bounds overlap of feed and returns how many
// pairs were new.
func (s *Simulation) RegisterFrom(feed RegistrationFeed) int {
	n := 0
	for _, o := range feed.Overlaps() {
		if !s.cfg.Dims.Contains(o.Index) {
			continue
		}
		if _, exists := s.reg.State(o.Body, o.Index); exists {
			continue
		}
		if err := s.Register(o.Body, o.Index, o.Params); err == nil {
			n++
		}
	}
	s.logger.Info("Registered overlaps", "new", n, "cells", s.reg.Cells())
	return n
}

// ClearRegistry drops every cell state and membership.
func (s *Simulation) ClearRegistry() {
	s.reg.Clear()
}

func (s *Simulation) active(body core.BodyID) ([]*cell.State, error) {
	if !s.reg.IsRegistered(body) {
		return nil, fmt.Errorf("%s: %w", body, ErrNotRegistered)
	}
	return s.reg.Active(body), nil
}

// SetParam writes a parameter on every flammable and burning cell of body.
func (s *Simulation) SetParam(body core.BodyID, p core.Param, v float64) error {
	states, err := s.active(body)
	if err != nil {
		return err
	}
	for _, st := range states {
		st.SetParam(p, v)
	}
	return nil
}

// Param reads a parameter from the first flammable (else burning) cell of body.
func (s *Simulation) Param(body core.BodyID, p core.Param) (float64, error) {
	states, err := s.active(body)
	if err != nil {
		return 0, err
	}
	if len(states) == 0 {
		return 0, fmt.Errorf("%s: %w", body, ErrNoCells)
	}
	return states[0].Param(p), nil
}

// SetFireOn raises every cell of body to its ignition point.
func (s *Simulation) SetFireOn(body core.BodyID) error {
	states, err := s.active(body)
	if err != nil {
		return err
	}
	for _, st := range states {
		st.SetTemperature(st.IgnitionPoint)
	}
	return nil
}

// SetBodyTemperature sets the temperature of every cell of body.
func (s *Simulation) SetBodyTemperature(body core.BodyID, t float64) error {
	return s.SetParam(body, core.ParamTemperature, t)
}

// BodyTemperature is the mean temperature over the flammable and burning
// cells of body, or ambient when it has none.
func (s *Simulation) BodyTemperature(body core.BodyID) (float64, error) {
	states, err := s.active(body)
	if err != nil {
		return 0, err
	}
	return meanTemperature(states), nil
}

func meanTemperature(states []*cell.State) float64 {
	if len(states) == 0 {
		return core.AmbientTemperature
	}
	var sum float64
	for _, st := range states {
		sum += st.Temperature
	}
	return sum / float64(len(states))
}

// AddHeat injects heat at idx; it lands in the field at the next commit.
func (s *Simulation) AddHeat(idx core.Index, amount float64) error {
	if !s.cfg.Dims.Contains(idx) {
		return fmt.Errorf("add heat at %v: %w", idx, ErrOutOfBounds)
	}
	s.field.Accumulate(idx, amount)
	return nil
}

// HeatAt returns the live field heat at idx.
func (s *Simulation) HeatAt(idx core.Index) float64 {
	return s.field.At(idx)
}

// FieldSnapshot copies the interior field in depth, width, height order.
func (s *Simulation) FieldSnapshot() []float64 {
	return s.field.Snapshot()
}

// Burning lists the burning indices of body.
func (s *Simulation) Burning(body core.BodyID) ([]core.Index, error) {
	if !s.reg.IsRegistered(body) {
		return nil, fmt.Errorf("%s: %w", body, ErrNotRegistered)
	}
	return s.reg.Burning(body).Items(), nil
}

// Flammable lists the flammable indices of body.
func (s *Simulation) Flammable(body core.BodyID) ([]core.Index, error) {
	if !s.reg.IsRegistered(body) {
		return nil, fmt.Errorf("%s: %w", body, ErrNotRegistered)
	}
	return s.reg.Flammable(body).Items(), nil
}

// Status reports the combustion status of body at idx.
func (s *Simulation) Status(body core.BodyID, idx core.Index) combustion.Status {
	return combustion.StatusOf(s.reg, body, idx)
}

// CellState returns a copy of the state of body at idx.
func (s *Simulation) CellState(body core.BodyID, idx core.Index) (cell.Snapshot, bool) {
	st, ok := s.reg.State(body, idx)
	if !ok {
		return cell.Snapshot{}, false
	}
	return st.Snapshot(), true
}

// Bodies lists registered bodies in registration order.
func (s *Simulation) Bodies() []core.BodyID {
	return s.reg.Bodies()
}

// Fires returns the live fires of body.
func (s *Simulation) Fires(body core.BodyID) []*lifecycle.Fire {
	return s.fires.Fires(body)
}

// LiveFires counts fires across all bodies.
func (s *Simulation) LiveFires() int {
	return s.fires.Live()
}

// OrphanedFires counts fires awaiting visual teardown.
func (s *Simulation) OrphanedFires() int {
	return s.fires.Orphans()
}
