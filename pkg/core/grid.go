// pkg/core/grid.go
package core

import "fmt"

// Index addresses one cell of the simulation grid as (depth, width, height).
type Index struct {
	D int `json:"d"`
	W int `json:"w"`
	H int `json:"h"`
}

// Idx is shorthand for constructing an Index.
func Idx(d, w, h int) Index {
	return Index{D: d, W: w, H: h}
}

// Add returns the component-wise sum of two indices.
func (i Index) Add(o Index) Index {
	return Index{D: i.D + o.D, W: i.W + o.W, H: i.H + o.H}
}

// Less orders indices by depth, then width, then height.
func (i Index) Less(o Index) bool {
	if i.D != o.D {
		return i.D < o.D
	}
	if i.W != o.W {
		return i.W < o.W
	}
	return i.H < o.H
}

func (i Index) String() string {
	return fmt.Sprintf("(%d,%d,%d)", i.D, i.W, i.H)
}

// Dims holds the unpadded grid bounds.
type Dims struct {
	Depth  int `json:"depth"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether idx lies within [0, N) on every axis.
func (d Dims) Contains(idx Index) bool {
	return idx.D >= 0 && idx.D < d.Depth &&
		idx.W >= 0 && idx.W < d.Width &&
		idx.H >= 0 && idx.H < d.Height
}

// Cells is the number of addressable cells.
func (d Dims) Cells() int {
	return d.Depth * d.Width * d.Height
}

// Valid reports whether every dimension is positive.
func (d Dims) Valid() bool {
	return d.Depth > 0 && d.Width > 0 && d.Height > 0
}

// BodyID identifies an external body occupying one or more cells.
type BodyID string
