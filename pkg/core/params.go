// pkg/core/params.go
package core

import (
	"fmt"
	"strings"
)

// Process-wide simulation constants.
const (
	AmbientTemperature = 20.0
	StefanBoltzmann    = 5.6703e-8
	HitQueryRequired   = 12
	HitQueryTolerance  = 256
)

// Params are the per-cell combustion parameters a body carries on registration.
type Params struct {
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTemperature float64 `json:"maxTemperature" yaml:"maxTemperature"`
	IgnitionPoint  float64 `json:"ignitionPoint" yaml:"ignitionPoint"`
	HeatAbsorbRate float64 `json:"heatAbsorbRate" yaml:"heatAbsorbRate"`
	HeatEmitRate   float64 `json:"heatEmitRate" yaml:"heatEmitRate"`
	Fuel           float64 `json:"fuel" yaml:"fuel"`
	MinFireSize    float64 `json:"minFireSize" yaml:"minFireSize"`
	MaxFireSize    float64 `json:"maxFireSize" yaml:"maxFireSize"`
}

// DefaultParams returns the parameters used when a body supplies none.
func DefaultParams() Params {
	return Params{
		Temperature:    AmbientTemperature,
		MaxTemperature: 1000,
		IgnitionPoint:  100,
		HeatAbsorbRate: 1,
		HeatEmitRate:   1,
		Fuel:           40,
		MinFireSize:    0.4,
		MaxFireSize:    2,
	}
}

// Param names a single mutable combustion parameter.
type Param int

const (
	ParamTemperature Param = iota
	ParamMaxTemperature
	ParamIgnitionPoint
	ParamHeatAbsorbRate
	ParamHeatEmitRate
	ParamFuel
	ParamMinFireSize
	ParamMaxFireSize
)

var paramNames = map[Param]string{
	ParamTemperature:    "temperature",
	ParamMaxTemperature: "maxTemperature",
	ParamIgnitionPoint:  "ignitionPoint",
	ParamHeatAbsorbRate: "heatAbsorbRate",
	ParamHeatEmitRate:   "heatEmitRate",
	ParamFuel:           "fuel",
	ParamMinFireSize:    "minFireSize",
	ParamMaxFireSize:    "maxFireSize",
}

func (p Param) String() string {
	if name, ok := paramNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Param(%d)", int(p))
}

// ParseParam resolves a parameter name case-insensitively.
func ParseParam(name string) (Param, error) {
	for p, n := range paramNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}
