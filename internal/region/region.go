// Package region groups face-adjacent burning cells into fire regions.
package region

import (
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/pkg/core"
)

// neighbors is the traversal order of face-adjacent cells.
var neighbors = [6]core.Index{
	{D: 1}, {W: 1}, {D: -1}, {W: -1}, {H: 1}, {H: -1},
}

// Region is one connected component of a body's burning cells.
type Region struct {
	Body    core.BodyID
	Indices []core.Index
	Samples []mgl64.Vec3
}

// Key identifies the index set independent of discovery order.
func (r Region) Key() string {
	return Key(r.Indices)
}

// Key builds a canonical string for a set of indices.
func Key(indices []core.Index) string {
	sorted := slices.Clone(indices)
	slices.SortFunc(sorted, func(a, b core.Index) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	var sb strings.Builder
	for _, idx := range sorted {
		sb.WriteString(idx.String())
	}
	return sb.String()
}

// Aggregate flood-fills the burning set of body. Cells are marked visited as
// they join a region; the flag is cleared in post-update.
func Aggregate(reg *cell.Registry, body core.BodyID) []Region {
	burning := reg.Burning(body)
	if burning == nil {
		return nil
	}

	var regions []Region
	for _, start := range burning.Items() {
		s, ok := reg.State(body, start)
		if !ok || s.Visited {
			continue
		}
		regions = append(regions, fill(reg, body, burning, start))
	}
	return regions
}

// AggregateAll runs Aggregate for every body in registration order.
func AggregateAll(reg *cell.Registry) []Region {
	var out []Region
	for _, body := range reg.Bodies() {
		out = append(out, Aggregate(reg, body)...)
	}
	return out
}

// fill walks the component containing start with an explicit stack. Pushing
// neighbors in reverse and checking visited on pop yields the same preorder
// as a recursive walk.
func fill(reg *cell.Registry, body core.BodyID, burning *cell.IndexSet, start core.Index) Region {
	r := Region{Body: body}
	stack := []core.Index{start}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s, ok := reg.State(body, idx)
		if !ok || s.Visited {
			continue
		}
		s.Visited = true
		r.Indices = append(r.Indices, idx)
		r.Samples = append(r.Samples, s.HitPoints()...)

		for i := len(neighbors) - 1; i >= 0; i-- {
			n := idx.Add(neighbors[i])
			if !burning.Contains(n) {
				continue
			}
			if ns, ok := reg.State(body, n); ok && !ns.Visited {
				stack = append(stack, n)
			}
		}
	}
	return r
}
