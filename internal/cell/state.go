// Package cell holds per-cell combustion state and the occupancy registry.
package cell

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/pkg/core"
)

const kelvin = 273.15

// State is one body's combustion state at one cell.
type State struct {
	Temperature    float64
	MaxTemperature float64
	IgnitionPoint  float64
	HeatAbsorbRate float64
	HeatEmitRate   float64
	Fuel           float64
	MinFireSize    float64
	MaxFireSize    float64
	RadiationArea  float64
	IgnitionCore   mgl64.Vec3
	Burning        bool
	HitBudget      int
	Visited        bool

	HeatDamageApplied  float64
	HeatDamageReceived float64

	hitPoints []mgl64.Vec3
	hitSeen   map[mgl64.Vec3]struct{}
}

// NewState builds a state from registration parameters.
func NewState(p core.Params) *State {
	s := &State{
		MaxTemperature: p.MaxTemperature,
		IgnitionPoint:  p.IgnitionPoint,
		HeatAbsorbRate: p.HeatAbsorbRate,
		HeatEmitRate:   p.HeatEmitRate,
		Fuel:           p.Fuel,
		MinFireSize:    p.MinFireSize,
		MaxFireSize:    p.MaxFireSize,
		RadiationArea:  -1,
	}
	s.SetTemperature(p.Temperature)
	return s
}

// SetTemperature assigns the temperature within [ambient, max].
func (s *State) SetTemperature(t float64) {
	s.Temperature = mgl64.Clamp(t, core.AmbientTemperature, max(s.MaxTemperature, core.AmbientTemperature))
}

// ReceiveHeat applies field heat over the tick interval (seconds).
func (s *State) ReceiveHeat(heat, interval float64) {
	s.HeatDamageReceived = heat * interval * s.HeatAbsorbRate
	s.SetTemperature(s.Temperature + s.HeatDamageReceived)
}

// RadiateHeat returns the black-body heat emitted over RadiationArea.
func (s *State) RadiateHeat() float64 {
	hot := math.Pow(s.MaxTemperature+kelvin, 4)
	cold := math.Pow((s.MaxTemperature-s.Temperature)+kelvin, 4)
	s.HeatDamageApplied = core.StefanBoltzmann * (hot - cold) * (s.RadiationArea / 1e4) * s.HeatEmitRate / 1000
	return s.HeatDamageApplied
}

// IsBurntOut reports whether the fuel is exhausted.
func (s *State) IsBurntOut() bool {
	return s.Fuel <= 0
}

// IsIgnitionStarting reports whether a flammable cell should ignite.
func (s *State) IsIgnitionStarting() bool {
	return s.Temperature >= s.IgnitionPoint
}

// IsExtinguished reports whether a burning cell has cooled below ignition.
func (s *State) IsExtinguished() bool {
	return s.Temperature < s.IgnitionPoint
}

// ClampFireSize converts a footprint area (cm²) into a visual scale.
func (s *State) ClampFireSize(area float64) mgl64.Vec3 {
	size := mgl64.Clamp(area/1e4, s.MinFireSize, s.MaxFireSize)
	return mgl64.Vec3{size, size, 1}
}

// AddHitPoint records a sample, ignoring exact duplicates.
func (s *State) AddHitPoint(p mgl64.Vec3) bool {
	if s.hitSeen == nil {
		s.hitSeen = make(map[mgl64.Vec3]struct{})
	}
	if _, ok := s.hitSeen[p]; ok {
		return false
	}
	s.hitSeen[p] = struct{}{}
	s.hitPoints = append(s.hitPoints, p)
	return true
}

// HitPoints returns the recorded samples in arrival order.
func (s *State) HitPoints() []mgl64.Vec3 {
	return s.hitPoints
}

// Param reads a parameter by name.
func (s *State) Param(p core.Param) float64 {
	switch p {
	case core.ParamTemperature:
		return s.Temperature
	case core.ParamMaxTemperature:
		return s.MaxTemperature
	case core.ParamIgnitionPoint:
		return s.IgnitionPoint
	case core.ParamHeatAbsorbRate:
		return s.HeatAbsorbRate
	case core.ParamHeatEmitRate:
		return s.HeatEmitRate
	case core.ParamFuel:
		return s.Fuel
	case core.ParamMinFireSize:
		return s.MinFireSize
	case core.ParamMaxFireSize:
		return s.MaxFireSize
	}
	return 0
}

// SetParam writes a parameter by name.
func (s *State) SetParam(p core.Param, v float64) {
	switch p {
	case core.ParamTemperature:
		s.SetTemperature(v)
	case core.ParamMaxTemperature:
		s.MaxTemperature = v
		s.SetTemperature(s.Temperature)
	case core.ParamIgnitionPoint:
		s.IgnitionPoint = v
	case core.ParamHeatAbsorbRate:
		s.HeatAbsorbRate = v
	case core.ParamHeatEmitRate:
		s.HeatEmitRate = v
	case core.ParamFuel:
		s.Fuel = v
	case core.ParamMinFireSize:
		s.MinFireSize = v
	case core.ParamMaxFireSize:
		s.MaxFireSize = v
	}
}

// Snapshot is a copy of a state safe to hand outside the simulation.
type Snapshot struct {
	Temperature    float64 `json:"temperature"`
	MaxTemperature float64 `json:"maxTemperature"`
	IgnitionPoint  float64 `json:"ignitionPoint"`
	Fuel           float64 `json:"fuel"`
	RadiationArea  float64 `json:"radiationArea"`
	Burning        bool    `json:"burning"`
	HitPoints      int     `json:"hitPoints"`
}

// Snapshot copies the externally interesting fields.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Temperature:    s.Temperature,
		MaxTemperature: s.MaxTemperature,
		IgnitionPoint:  s.IgnitionPoint,
		Fuel:           s.Fuel,
		RadiationArea:  s.RadiationArea,
		Burning:        s.Burning,
		HitPoints:      len(s.hitPoints),
	}
}
