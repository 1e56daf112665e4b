// Package geometry turns scattered surface samples into a planar fire footprint.
package geometry

import (
	"cmp"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// Estimate is the footprint derived from a set of sample points.
type Estimate struct {
	Center     mgl64.Vec2
	Z          float64
	Area       float64
	SignedArea float64
	Hull       []mgl64.Vec3
}

// Position returns the estimated center lifted to the representative Z.
func (e Estimate) Position() mgl64.Vec3 {
	return e.Center.Vec3(e.Z)
}

// Compute estimates center, area and height for the given points.
// It panics when points is empty.
func Compute(points []mgl64.Vec3) Estimate {
	if len(points) == 0 {
		panic("geometry: estimate over empty point set")
	}

	// Z comes from the inputs, before the hull discards interior points.
	z := MinZ(points)

	hull := points
	if len(points) >= 3 {
		hull = ConvexHull(SortAngular(points))
	}

	est := Estimate{Z: z, Hull: slices.Clone(hull)}
	switch len(hull) {
	case 1:
		est.Center = hull[0].Vec2()
	case 2:
		est.Center = hull[0].Vec2().Add(hull[1].Vec2()).Mul(0.5)
	default:
		est.Center, est.SignedArea = Centroid(hull)
		est.Area = math.Abs(est.SignedArea)
	}
	return est
}

// Cross returns the turn of A→B→C; positive is a left turn in a
// right-handed frame, which is clockwise in the host's left-handed frame.
func Cross(a, b, c mgl64.Vec3) float64 {
	return a.X()*b.Y() + b.X()*c.Y() + c.X()*a.Y() -
		b.X()*a.Y() - c.X()*b.Y() - a.X()*c.Y()
}

// SortAngular orders points around the lowest (X, then Y) point, which stays first.
func SortAngular(points []mgl64.Vec3) []mgl64.Vec3 {
	sorted := slices.Clone(points)
	slices.SortFunc(sorted, func(a, b mgl64.Vec3) int {
		if c := cmp.Compare(a.X(), b.X()); c != 0 {
			return c
		}
		return cmp.Compare(a.Y(), b.Y())
	})

	pivot := sorted[0]
	rest := sorted[1:]
	slices.SortStableFunc(rest, func(a, b mgl64.Vec3) int {
		ra, rb := a.Sub(pivot), b.Sub(pivot)
		cross := ra.X()*rb.Y() - ra.Y()*rb.X()
		switch {
		case cross > 0:
			return -1
		case cross < 0:
			return 1
		}
		return 0
	})
	return sorted
}

// ConvexHull runs a stack scan over angularly sorted points. The result is
// read off the stack top first.
func ConvexHull(sorted []mgl64.Vec3) []mgl64.Vec3 {
	if len(sorted) < 3 {
		return slices.Clone(sorted)
	}

	stack := make([]mgl64.Vec3, 0, len(sorted))
	stack = append(stack, sorted[0], sorted[1])
	for _, next := range sorted[2:] {
		for len(stack) >= 2 {
			second := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			first := stack[len(stack)-1]
			if Cross(first, second, next) > 0 {
				stack = append(stack, second)
				break
			}
		}
		stack = append(stack, next)
	}

	slices.Reverse(stack)
	return stack
}

// Centroid computes the shoelace centroid and signed area of a closed polygon.
// A polygon with zero area falls back to the mean of its vertices.
func Centroid(poly []mgl64.Vec3) (mgl64.Vec2, float64) {
	var cx, cy, signed float64
	for i := range poly {
		p, q := poly[i], poly[(i+1)%len(poly)]
		f := p.X()*q.Y() - q.X()*p.Y()
		signed += f
		cx += (p.X() + q.X()) * f
		cy += (p.Y() + q.Y()) * f
	}
	signed *= 0.5

	if signed == 0 {
		var mean mgl64.Vec2
		for _, p := range poly {
			mean = mean.Add(p.Vec2())
		}
		return mean.Mul(1 / float64(len(poly))), 0
	}

	return mgl64.Vec2{cx / (6 * signed), cy / (6 * signed)}, signed
}

// Area returns the unsigned shoelace area of a closed polygon.
func Area(poly []mgl64.Vec3) float64 {
	var sum float64
	for i := range poly {
		p, q := poly[i], poly[(i+1)%len(poly)]
		sum += p.X()*q.Y() - q.X()*p.Y()
	}
	return math.Abs(sum) / 2
}

// MinZ returns the lowest Z among points.
func MinZ(points []mgl64.Vec3) float64 {
	z := points[0].Z()
	for _, p := range points[1:] {
		z = min(z, p.Z())
	}
	return z
}
