// Package scene is a self-contained host for the simulation: axis-aligned
// bodies placed in a world frame, a ray-cast surface sampler, fire blob
// visuals and a tag registry.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/combustion"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
)

var (
	ErrDuplicateBody = errors.New("body already in scene")
	ErrEmptyBody     = errors.New("body has no volume")
)

// Grid places the simulation lattice in world space.
type Grid struct {
	Dims    core.Dims
	Origin  mgl64.Vec3
	Spacing float64
}

// GridOf extracts the lattice placement of a simulation config.
func GridOf(cfg sim.Config) Grid {
	return Grid{Dims: cfg.Dims, Origin: cfg.Origin, Spacing: cfg.Spacing}
}

// CellBox returns the world-space bounds of idx.
func (g Grid) CellBox(idx core.Index) Box {
	min := g.Origin.Add(mgl64.Vec3{
		float64(idx.D) * g.Spacing,
		float64(idx.W) * g.Spacing,
		float64(idx.H) * g.Spacing,
	})
	return Box{Min: min, Max: min.Add(mgl64.Vec3{g.Spacing, g.Spacing, g.Spacing})}
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max mgl64.Vec3
}

// Center returns the midpoint of b.
func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent of b on each axis.
func (b Box) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Overlaps reports whether b and o share a volume. Touching faces do not count.
func (b Box) Overlaps(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Min[i] >= o.Max[i] || o.Min[i] >= b.Max[i] {
			return false
		}
	}
	return true
}

// Body is a flammable object in the scene.
type Body struct {
	ID     core.BodyID
	Bounds Box
	Params core.Params
}

// Scene implements sim.RegistrationFeed, combustion.Sampler,
// combustion.Tagger and lifecycle.Spawner.
type Scene struct {
	mu     sync.Mutex
	grid   Grid
	bodies []Body
	byID   map[core.BodyID]int
	tags   map[core.BodyID][]string
	blobs  []*FireBlob
	nextID uint64
	rng    *rand.Rand
	logger *slog.Logger
}

// New creates an empty scene. The seed makes sampling and blob timing
// reproducible.
func New(grid Grid, seed uint64, logger *slog.Logger) *Scene {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scene{
		grid:   grid,
		byID:   make(map[core.BodyID]int),
		tags:   make(map[core.BodyID][]string),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger,
	}
}

// AddBody places b in the scene.
func (s *Scene) AddBody(b Body) error {
	size := b.Bounds.Size()
	if size.X() <= 0 || size.Y() <= 0 || size.Z() <= 0 {
		return fmt.Errorf("%w: %s", ErrEmptyBody, b.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBody, b.ID)
	}
	s.byID[b.ID] = len(s.bodies)
	s.bodies = append(s.bodies, b)
	return nil
}

// Body returns the body with id.
func (s *Scene) Body(id core.BodyID) (Body, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return Body{}, false
	}
	return s.bodies[i], true
}

// Bodies returns every body in insertion order.
func (s *Scene) Bodies() []Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bodies)
}

// Overlaps returns every (body, cell) pair whose volumes intersect, bodies
// in insertion order and cells in (D, W, H) order.
func (s *Scene) Overlaps() []sim.Overlap {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []sim.Overlap
	for _, b := range s.bodies {
		lo, hi := s.cellRange(b.Bounds)
		for d := lo.D; d <= hi.D; d++ {
			for w := lo.W; w <= hi.W; w++ {
				for h := lo.H; h <= hi.H; h++ {
					idx := core.Idx(d, w, h)
					if b.Bounds.Overlaps(s.grid.CellBox(idx)) {
						out = append(out, sim.Overlap{Body: b.ID, Index: idx, Params: b.Params})
					}
				}
			}
		}
	}
	return out
}

// cellRange returns the inclusive index range covered by box, clamped to the grid.
func (s *Scene) cellRange(box Box) (core.Index, core.Index) {
	axis := func(i, n int) (int, int) {
		lo := int(math.Floor((box.Min[i] - s.grid.Origin[i]) / s.grid.Spacing))
		hi := int(math.Ceil((box.Max[i]-s.grid.Origin[i])/s.grid.Spacing)) - 1
		return max(lo, 0), min(hi, n-1)
	}
	d0, d1 := axis(0, s.grid.Dims.Depth)
	w0, w1 := axis(1, s.grid.Dims.Width)
	h0, h1 := axis(2, s.grid.Dims.Height)
	return core.Idx(d0, w0, h0), core.Idx(d1, w1, h1)
}

// Tag records tag on body. Repeated tags are ignored.
func (s *Scene) Tag(body core.BodyID, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.tags[body], tag) {
		return
	}
	s.tags[body] = append(s.tags[body], tag)
	s.logger.Debug("Body tagged", "body", body, "tag", tag)
}

// Untag removes tag from body.
func (s *Scene) Untag(body core.BodyID, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tags[body]
	i := slices.Index(tags, tag)
	if i < 0 {
		return
	}
	s.tags[body] = slices.Delete(tags, i, i+1)
	s.logger.Debug("Body untagged", "body", body, "tag", tag)
}

// Tags returns the tags of body in the order they were applied.
func (s *Scene) Tags(body core.BodyID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tags[body])
}

// HasTag reports whether body carries tag.
func (s *Scene) HasTag(body core.BodyID, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.tags[body], tag)
}

// burning reports whether body is on fire and not yet burnt out. Caller holds mu.
func (s *Scene) burning(body core.BodyID) bool {
	tags := s.tags[body]
	return slices.Contains(tags, combustion.TagBurning) && !slices.Contains(tags, combustion.TagBurntOut)
}

// ClearTags drops every tag.
func (s *Scene) ClearTags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tags)
}
