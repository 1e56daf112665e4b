package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const warehouse = `
name: warehouse
seed: 7
grid:
  depth: 4
  width: 4
  height: 2
  origin: [-200, -200, 0]
sim:
  interval: 250ms
defaults:
  fuel: 10
bodies:
  - id: crate
    min: [-150, -150, 10]
    max: [-60, -60, 90]
  - id: shelf
    min: [0, 0, 0]
    max: [180, 40, 190]
    params:
      ignitionPoint: 250
      maxFireSize: 3
script:
  - tick: 5
    command: ":SIM:PAUSE:"
  - tick: 0
    command: ":FIRE:ON:"
    args: [crate]
  - tick: 0
    command: ":STATUS:"
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(warehouse), sim.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "warehouse", s.Name)
	assert.Equal(t, "warehouse", s.Config.Name, "names recorded sessions")
	assert.Equal(t, uint64(7), s.Seed)
	assert.Equal(t, core.Dims{Depth: 4, Width: 4, Height: 2}, s.Config.Dims)
	assert.Equal(t, 100.0, s.Config.Spacing, "kept from base")
	assert.Equal(t, mgl64.Vec3{-200, -200, 0}, s.Config.Origin)
	assert.Equal(t, 250*time.Millisecond, s.Config.Interval)
	assert.Equal(t, 0.16, s.Config.TransferRate)
	assert.Equal(t, 12, s.Config.Quota.Required)

	require.Len(t, s.Bodies, 2)
	crate := s.Bodies[0]
	assert.Equal(t, core.BodyID("crate"), crate.ID)
	assert.Equal(t, 10.0, crate.Params.Fuel, "file defaults")
	assert.Equal(t, 100.0, crate.Params.IgnitionPoint, "built-in defaults")

	shelf := s.Bodies[1]
	assert.Equal(t, 250.0, shelf.Params.IgnitionPoint)
	assert.Equal(t, 3.0, shelf.Params.MaxFireSize)
	assert.Equal(t, 10.0, shelf.Params.Fuel)
	assert.Equal(t, mgl64.Vec3{180, 40, 190}, shelf.Bounds.Max)

	require.Len(t, s.Script, 3)
	assert.Equal(t, ":FIRE:ON:", s.Script[0].Command, "stable sort keeps file order within a tick")
	assert.Equal(t, []string{"crate"}, s.Script[0].Args)
	assert.Equal(t, ":STATUS:", s.Script[1].Command)
	assert.Equal(t, uint64(5), s.LastTick())

	assert.Len(t, s.Due(0), 2)
	assert.Len(t, s.Due(5), 1)
	assert.Empty(t, s.Due(3))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "grid: [unclosed"},
		{"missing id", "bodies:\n  - min: [0,0,0]\n    max: [1,1,1]\n"},
		{"duplicate id", "bodies:\n  - id: a\n    max: [1,1,1]\n  - id: a\n    max: [1,1,1]\n"},
		{"bad params", "bodies:\n  - id: a\n    params: [1, 2]\n"},
		{"empty command", "script:\n  - tick: 1\n"},
		{"invalid grid", "grid:\n  depth: 0\n"},
		{"bad transfer rate", "sim:\n  transferRate: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), sim.DefaultConfig())
			assert.Error(t, err)
		})
	}
}

func TestParse_InvalidWrapsSentinel(t *testing.T) {
	_, err := Parse([]byte("grid:\n  depth: 0\n"), sim.DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(warehouse), 0644))

	s, err := Load(path, sim.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "warehouse", s.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), sim.DefaultConfig())
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	s, err := Parse([]byte(warehouse), sim.DefaultConfig())
	require.NoError(t, err)

	sc, err := s.Build(nil)
	require.NoError(t, err)
	assert.Len(t, sc.Bodies(), 2)

	overlaps := sc.Overlaps()
	require.NotEmpty(t, overlaps)
	assert.Equal(t, core.BodyID("crate"), overlaps[0].Body)
	assert.Equal(t, core.Idx(0, 0, 0), overlaps[0].Index)
}

func TestBuild_RejectsEmptyBody(t *testing.T) {
	s, err := Parse([]byte("bodies:\n  - id: flat\n    max: [10, 10, 0]\n"), sim.DefaultConfig())
	require.NoError(t, err)

	_, err = s.Build(nil)
	assert.Error(t, err)
}
