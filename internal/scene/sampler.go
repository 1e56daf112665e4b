package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/pkg/core"
)

// jitter displaces ray origins off the cell surface.
const jitter = 10.0

// Sample traces one ray from a random point on the surface of cell idx
// toward its center and returns where it first hits body. Rays blocked by
// another body, or that miss, report false. Other bodies that are burning
// are transparent so neighbouring fires do not starve each other.
func (s *Scene) Sample(body core.BodyID, idx core.Index) (mgl64.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cellBox := s.grid.CellBox(idx)
	to := cellBox.Center()
	from := s.randOnSurface(cellBox).Add(s.randUnit().Mul(jitter))

	var (
		hitBody core.BodyID
		hitT    = math.Inf(1)
	)
	for _, b := range s.bodies {
		if b.ID != body && s.burning(b.ID) {
			continue
		}
		if t, ok := SegmentBox(from, to, b.Bounds); ok && t < hitT {
			hitT, hitBody = t, b.ID
		}
	}
	if math.IsInf(hitT, 1) || hitBody != body {
		return mgl64.Vec3{}, false
	}
	return from.Add(to.Sub(from).Mul(hitT)), true
}

// SegmentBox intersects the segment from→to with box using the slab method
// and returns the entry parameter in [0,1]. A segment starting inside the
// box hits at 0.
func SegmentBox(from, to mgl64.Vec3, box Box) (float64, bool) {
	dir := to.Sub(from)
	tmin, tmax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			if from[i] < box.Min[i] || from[i] > box.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[i]
		t1 := (box.Min[i] - from[i]) * inv
		t2 := (box.Max[i] - from[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// randOnSurface picks a face of box uniformly, then a point on it.
func (s *Scene) randOnSurface(box Box) mgl64.Vec3 {
	face := s.rng.IntN(6)
	axis := face / 2
	var p mgl64.Vec3
	for i := 0; i < 3; i++ {
		p[i] = box.Min[i] + s.rng.Float64()*(box.Max[i]-box.Min[i])
	}
	if face%2 == 0 {
		p[axis] = box.Min[axis]
	} else {
		p[axis] = box.Max[axis]
	}
	return p
}

// randUnit returns a uniformly distributed unit vector.
func (s *Scene) randUnit() mgl64.Vec3 {
	z := 2*s.rng.Float64() - 1
	phi := 2 * math.Pi * s.rng.Float64()
	r := math.Sqrt(1 - z*z)
	return mgl64.Vec3{r * math.Cos(phi), r * math.Sin(phi), z}
}
