package lifecycle

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/internal/geometry"
	"github.com/heatbox/extension/internal/region"
	"github.com/heatbox/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVisual struct {
	size     float64
	paused   bool
	shrinks  int
	pending  bool
	destroy  bool
	spawnedX mgl64.Vec3
}

func (v *fakeVisual) SetSize(size float64) { v.size = size }
func (v *fakeVisual) Pause() { v.paused = true }
func (v *fakeVisual) Resume() { v.paused = false }
func (v *fakeVisual) RequestShrinkToDeath() { v.shrinks++; v.pending = true }
func (v *fakeVisual) IsPending() bool { return v.pending }
func (v *fakeVisual) IsMarkedForDestroy() bool { return v.destroy }

type fakeSpawner struct {
	visuals []*fakeVisual
}

func (s *fakeSpawner) Spawn(center, size mgl64.Vec3) Visual {
	v := &fakeVisual{size: size.X(), spawnedX: center}
	s.visuals = append(s.visuals, v)
	return v
}

func observe(reg *cell.Registry, body core.BodyID, indices ...core.Index) Observation {
	return Observation{
		Region:   region.Region{Body: body, Indices: indices},
		Estimate: geometry.Estimate{Center: mgl64.Vec2{1, 2}, Z: 3, Area: 15000},
	}
}

func newTracker(t *testing.T) (*cell.Registry, *Tracker, *fakeSpawner) {
	t.Helper()
	reg := cell.NewRegistry()
	for d := range 3 {
		reg.Register("crate", core.Idx(d, 0, 0), core.DefaultParams())
	}
	sp := &fakeSpawner{}
	return reg, New(reg, sp, nil), sp
}

func TestObserve_SpawnUsesFirstMemberClamp(t *testing.T) {
	reg, tr, sp := newTracker(t)

	f := tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0)))
	ch := tr.Commit()

	require.Len(t, sp.visuals, 1)
	assert.Equal(t, []*Fire{f}, ch.Spawned)
	assert.Equal(t, mgl64.Vec3{1.5, 1.5, 1}, f.SpawnSize)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, f.SpawnCenter)
	assert.Equal(t, 1, tr.Live())
}

func TestObserve_UnchangedSetKeepsHandle(t *testing.T) {
	reg, tr, sp := newTracker(t)

	first := tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0), core.Idx(1, 0, 0)))
	tr.Commit()
	second := tr.Observe(observe(reg, "crate", core.Idx(1, 0, 0), core.Idx(0, 0, 0)))
	ch := tr.Commit()

	assert.Same(t, first, second)
	assert.Same(t, first.Visual, second.Visual)
	assert.Len(t, sp.visuals, 1)
	assert.Empty(t, ch.Spawned)
	assert.Empty(t, ch.Orphaned)
}

func TestObserve_ChangedSetRespawnsAndOrphans(t *testing.T) {
	reg, tr, sp := newTracker(t)

	first := tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0), core.Idx(1, 0, 0)))
	tr.Commit()
	second := tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0), core.Idx(1, 0, 0), core.Idx(2, 0, 0)))
	ch := tr.Commit()

	assert.NotSame(t, first.Visual, second.Visual)
	assert.Len(t, sp.visuals, 2)
	assert.Equal(t, []*Fire{first}, ch.Orphaned)
	assert.Equal(t, 1, sp.visuals[0].shrinks)
	assert.Equal(t, 1, tr.Orphans())
}

func TestCommit_OrphanRetiredAfterDestroyMark(t *testing.T) {
	reg, tr, sp := newTracker(t)
	tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0)))
	tr.Commit()

	tr.Commit()
	v := sp.visuals[0]
	assert.True(t, v.pending)

	ch := tr.Commit()
	assert.Empty(t, ch.Retired, "still shrinking")
	assert.Equal(t, 1, v.shrinks)

	v.destroy = true
	ch = tr.Commit()
	require.Len(t, ch.Retired, 1)
	assert.Zero(t, tr.Orphans())
}

func TestSmooth_MapsTemperatureToSize(t *testing.T) {
	reg, tr, sp := newTracker(t)
	for d := range 2 {
		s, _ := reg.State("crate", core.Idx(d, 0, 0))
		s.SetTemperature(550)
	}
	tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0), core.Idx(1, 0, 0)))
	tr.Commit()

	tr.Smooth()

	// avg 550 sits halfway between ignition 100 and max 1000.
	assert.InDelta(t, 1.75, sp.visuals[0].size, 1e-9)
}

func TestPauseResume_CoversOrphans(t *testing.T) {
	reg, tr, sp := newTracker(t)
	tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0)))
	tr.Commit()
	tr.Observe(observe(reg, "crate", core.Idx(1, 0, 0)))
	tr.Commit()

	tr.Pause()
	assert.True(t, sp.visuals[0].paused)
	assert.True(t, sp.visuals[1].paused)

	tr.Resume()
	assert.False(t, sp.visuals[0].paused)
}

func TestReset(t *testing.T) {
	reg, tr, _ := newTracker(t)
	tr.Observe(observe(reg, "crate", core.Idx(0, 0, 0)))
	tr.Commit()

	dropped := tr.Reset()

	assert.Len(t, dropped, 1)
	assert.Zero(t, tr.Live())
	assert.Empty(t, tr.Fires("crate"))
}

func TestMapRangeClamped(t *testing.T) {
	assert.Equal(t, 0.4, MapRangeClamped(100, 1000, 0.4, 2, 50))
	assert.InDelta(t, 2.0, MapRangeClamped(100, 1000, 0.4, 2, 2000), 1e-9)
	assert.InDelta(t, 1.2, MapRangeClamped(100, 1000, 0.4, 2, 550), 1e-9)
	assert.InDelta(t, 2.0, MapRangeClamped(100, 100, 0.4, 2, 100), 1e-9)
	assert.Equal(t, 0.4, MapRangeClamped(100, 100, 0.4, 2, 99))
}
