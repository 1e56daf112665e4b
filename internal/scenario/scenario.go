// Package scenario loads YAML scene descriptions: grid placement, bodies and
// a tick-scheduled command script.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/scene"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid scenario")

// Step is one scripted host command, run at the start of Tick.
type Step struct {
	Tick    uint64   `yaml:"tick"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type gridEntry struct {
	Depth   int        `yaml:"depth"`
	Width   int        `yaml:"width"`
	Height  int        `yaml:"height"`
	Spacing float64    `yaml:"spacing"`
	Origin  [3]float64 `yaml:"origin"`
}

type simEntry struct {
	TransferRate      float64       `yaml:"transferRate"`
	Interval          time.Duration `yaml:"interval"`
	HitQueryRequired  int           `yaml:"hitQueryRequired"`
	HitQueryTolerance int           `yaml:"hitQueryTolerance"`
}

type bodyEntry struct {
	ID     string     `yaml:"id"`
	Min    [3]float64 `yaml:"min"`
	Max    [3]float64 `yaml:"max"`
	Params yaml.Node  `yaml:"params"`
}

type scenarioFile struct {
	Name     string      `yaml:"name"`
	Seed     uint64      `yaml:"seed"`
	Grid     gridEntry   `yaml:"grid"`
	Sim      simEntry    `yaml:"sim"`
	Defaults core.Params `yaml:"defaults"`
	Bodies   []bodyEntry `yaml:"bodies"`
	Script   []Step      `yaml:"script"`
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Name   string
	Seed   uint64
	Config sim.Config
	Bodies []scene.Body
	Script []Step
}

// Load reads and parses a scenario file. Values missing from the file keep
// those of base.
func Load(path string, base sim.Config) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(raw, base)
}

// Parse decodes a scenario document.
func Parse(raw []byte, base sim.Config) (*Scenario, error) {
	f := scenarioFile{
		Grid: gridEntry{
			Depth:   base.Dims.Depth,
			Width:   base.Dims.Width,
			Height:  base.Dims.Height,
			Spacing: base.Spacing,
			Origin:  [3]float64(base.Origin),
		},
		Sim: simEntry{
			TransferRate:      base.TransferRate,
			Interval:          base.Interval,
			HitQueryRequired:  base.Quota.Required,
			HitQueryTolerance: base.Quota.Tolerance,
		},
		Defaults: core.DefaultParams(),
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	cfg := base
	if f.Name != "" {
		cfg.Name = f.Name
	}
	cfg.Dims = core.Dims{Depth: f.Grid.Depth, Width: f.Grid.Width, Height: f.Grid.Height}
	cfg.Spacing = f.Grid.Spacing
	cfg.Origin = mgl64.Vec3(f.Grid.Origin)
	cfg.TransferRate = f.Sim.TransferRate
	cfg.Interval = f.Sim.Interval
	cfg.Quota.Required = f.Sim.HitQueryRequired
	cfg.Quota.Tolerance = f.Sim.HitQueryTolerance
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s := &Scenario{Name: f.Name, Seed: f.Seed, Config: cfg}

	seen := make(map[string]bool, len(f.Bodies))
	for i, b := range f.Bodies {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: body %d has no id", ErrInvalid, i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("%w: duplicate body %q", ErrInvalid, b.ID)
		}
		seen[b.ID] = true

		p := f.Defaults
		if b.Params.Kind != 0 {
			if err := b.Params.Decode(&p); err != nil {
				return nil, fmt.Errorf("%w: body %q params: %w", ErrInvalid, b.ID, err)
			}
		}
		s.Bodies = append(s.Bodies, scene.Body{
			ID:     core.BodyID(b.ID),
			Bounds: scene.Box{Min: mgl64.Vec3(b.Min), Max: mgl64.Vec3(b.Max)},
			Params: p,
		})
	}

	for i, step := range f.Script {
		if step.Command == "" {
			return nil, fmt.Errorf("%w: script step %d has no command", ErrInvalid, i)
		}
	}
	s.Script = slices.Clone(f.Script)
	slices.SortStableFunc(s.Script, func(a, b Step) int {
		switch {
		case a.Tick < b.Tick:
			return -1
		case a.Tick > b.Tick:
			return 1
		}
		return 0
	})
	return s, nil
}

// Build places the bodies in a fresh scene.
func (s *Scenario) Build(logger *slog.Logger) (*scene.Scene, error) {
	sc := scene.New(scene.GridOf(s.Config), s.Seed, logger)
	for _, b := range s.Bodies {
		if err := sc.AddBody(b); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// Due returns the script steps scheduled for tick.
func (s *Scenario) Due(tick uint64) []Step {
	var out []Step
	for _, step := range s.Script {
		if step.Tick == tick {
			out = append(out, step)
		}
	}
	return out
}

// LastTick returns the tick of the final script step.
func (s *Scenario) LastTick() uint64 {
	if len(s.Script) == 0 {
		return 0
	}
	return s.Script[len(s.Script)-1].Tick
}
