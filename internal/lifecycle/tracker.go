// Package lifecycle tracks fire regions across ticks and drives their visuals.
package lifecycle

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/internal/geometry"
	"github.com/heatbox/extension/internal/region"
	"github.com/heatbox/extension/pkg/core"
)

// Visual is the host-side representation of a fire.
type Visual interface {
	SetSize(size float64)
	Pause()
	Resume()
	RequestShrinkToDeath()
	IsPending() bool
	IsMarkedForDestroy() bool
}

// Spawner creates visuals.
type Spawner interface {
	Spawn(center, size mgl64.Vec3) Visual
}

// Fire is a tracked region. Identity survives as long as the index set does.
type Fire struct {
	ID          uint64
	Body        core.BodyID
	Indices     []core.Index
	SpawnCenter mgl64.Vec3
	SpawnSize   mgl64.Vec3
	Estimate    geometry.Estimate
	Visual      Visual

	key string
}

// Key returns the canonical index-set key.
func (f *Fire) Key() string {
	return f.key
}

// Observation is a region paired with its footprint for the current tick.
type Observation struct {
	Region   region.Region
	Estimate geometry.Estimate
}

// Changes lists what a Commit did.
type Changes struct {
	Spawned  []*Fire
	Orphaned []*Fire
	Retired  []*Fire
}

// Tracker matches each tick's regions against the previous tick's.
type Tracker struct {
	reg     *cell.Registry
	spawner Spawner
	logger  *slog.Logger

	live    map[core.BodyID][]*Fire
	next    map[core.BodyID][]*Fire
	spawned []*Fire
	orphans []*Fire
	nextID  uint64
}

// New creates a Tracker. Spawned fires get a nil Visual when spawner is nil.
func New(reg *cell.Registry, spawner Spawner, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		reg:     reg,
		spawner: spawner,
		logger:  logger,
		live:    make(map[core.BodyID][]*Fire),
		next:    make(map[core.BodyID][]*Fire),
	}
}

// Observe records a region for the tick in progress. A region whose index
// set equals one of the body's previous fires keeps that fire; otherwise a
// new fire is spawned sized from its first member.
func (t *Tracker) Observe(obs Observation) *Fire {
	r := obs.Region
	key := r.Key()

	for _, old := range t.live[r.Body] {
		if old.key == key {
			old.Indices = r.Indices
			old.Estimate = obs.Estimate
			t.next[r.Body] = append(t.next[r.Body], old)
			return old
		}
	}

	t.nextID++
	f := &Fire{
		ID:          t.nextID,
		Body:        r.Body,
		Indices:     r.Indices,
		SpawnCenter: obs.Estimate.Position(),
		Estimate:    obs.Estimate,
		key:         key,
	}
	if first, ok := t.reg.State(r.Body, r.Indices[0]); ok {
		f.SpawnSize = first.ClampFireSize(obs.Estimate.Area)
	}
	if t.spawner != nil {
		f.Visual = t.spawner.Spawn(f.SpawnCenter, f.SpawnSize)
	}
	t.next[r.Body] = append(t.next[r.Body], f)
	t.spawned = append(t.spawned, f)
	t.logger.Debug("Fire spawned", "fire", f.ID, "body", f.Body, "cells", len(f.Indices), "area", obs.Estimate.Area)
	return f
}

// Commit closes the tick: unmatched previous fires become orphans, and
// orphans are walked through their teardown.
func (t *Tracker) Commit() Changes {
	ch := Changes{Spawned: t.spawned}

	for _, body := range slices.Sorted(maps.Keys(t.live)) {
		for _, old := range t.live[body] {
			if !containsKey(t.next[body], old.key) {
				t.orphans = append(t.orphans, old)
				ch.Orphaned = append(ch.Orphaned, old)
			}
		}
	}

	t.live, t.next = t.next, make(map[core.BodyID][]*Fire)
	t.spawned = nil
	ch.Retired = t.reapOrphans()
	return ch
}

func (t *Tracker) reapOrphans() []*Fire {
	var retired []*Fire
	kept := t.orphans[:0]
	for _, f := range t.orphans {
		switch {
		case f.Visual == nil:
			retired = append(retired, f)
			continue
		case !f.Visual.IsPending():
			f.Visual.RequestShrinkToDeath()
		case f.Visual.IsMarkedForDestroy():
			retired = append(retired, f)
			continue
		}
		kept = append(kept, f)
	}
	clear(t.orphans[len(kept):])
	t.orphans = kept
	return retired
}

func containsKey(fires []*Fire, key string) bool {
	for _, f := range fires {
		if f.key == key {
			return true
		}
	}
	return false
}

// Smooth rescales every live fire from its members' mean temperature. The
// range limits come from the last member's parameters.
func (t *Tracker) Smooth() {
	for _, fires := range t.live {
		for _, f := range fires {
			if f.Visual == nil {
				continue
			}
			last, ok := t.reg.State(f.Body, f.Indices[len(f.Indices)-1])
			if !ok {
				continue
			}
			var sum float64
			var n int
			for _, idx := range f.Indices {
				if s, ok := t.reg.State(f.Body, idx); ok {
					sum += s.Temperature
					n++
				}
			}
			avg := sum / float64(n)
			size := MapRangeClamped(last.IgnitionPoint, last.MaxTemperature, f.SpawnSize.X(), last.MaxFireSize, avg)
			f.Visual.SetSize(size)
		}
	}
}

// MapRangeClamped maps v from [inA, inB] onto [outA, outB], clamping the
// fraction to [0, 1]. An empty input range maps to outB when v ≥ inB.
func MapRangeClamped(inA, inB, outA, outB, v float64) float64 {
	var pct float64
	if d := inB - inA; d != 0 {
		pct = (v - inA) / d
	} else if v >= inB {
		pct = 1
	}
	pct = mgl64.Clamp(pct, 0, 1)
	return outA + (outB-outA)*pct
}

// Fires returns the live fires of body.
func (t *Tracker) Fires(body core.BodyID) []*Fire {
	return t.live[body]
}

// Live counts fires across bodies.
func (t *Tracker) Live() int {
	n := 0
	for _, fires := range t.live {
		n += len(fires)
	}
	return n
}

// Orphans counts fires awaiting teardown.
func (t *Tracker) Orphans() int {
	return len(t.orphans)
}

// Pause pauses every live and orphaned visual.
func (t *Tracker) Pause() {
	t.each(Visual.Pause)
}

// Resume resumes every live and orphaned visual.
func (t *Tracker) Resume() {
	t.each(Visual.Resume)
}

func (t *Tracker) each(fn func(Visual)) {
	for _, fires := range t.live {
		for _, f := range fires {
			if f.Visual != nil {
				fn(f.Visual)
			}
		}
	}
	for _, f := range t.orphans {
		if f.Visual != nil {
			fn(f.Visual)
		}
	}
}

// Reset forgets every fire. Live fires are handed back so callers can tear
// their visuals down.
func (t *Tracker) Reset() []*Fire {
	var dropped []*Fire
	for _, fires := range t.live {
		dropped = append(dropped, fires...)
	}
	dropped = append(dropped, t.orphans...)
	clear(t.live)
	clear(t.next)
	t.orphans = nil
	t.spawned = nil
	return dropped
}
