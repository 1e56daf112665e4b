// Package field holds the padded heat grid and its diffusion solver.
package field

import (
	"github.com/heatbox/extension/pkg/core"
)

// Sweeps is the fixed number of relaxation passes per Diffuse call.
const Sweeps = 20

// Field is a padded 3D scalar grid of generated heat per cell. Storage has a
// one-cell border on every side so diffusion never branches on neighbors.
// Heat injected through Accumulate is held aside until Commit.
type Field struct {
	dims core.Dims
	live []float64
	acc  []float64
	work []float64
}

// New allocates a zeroed field for the given interior dimensions.
func New(dims core.Dims) *Field {
	n := (dims.Depth + 2) * (dims.Width + 2) * (dims.Height + 2)
	return &Field{
		dims: dims,
		live: make([]float64, n),
		acc:  make([]float64, n),
		work: make([]float64, n),
	}
}

// Dims returns the interior dimensions.
func (f *Field) Dims() core.Dims {
	return f.dims
}

// Len is the padded storage size.
func (f *Field) Len() int {
	return len(f.live)
}

// offset flattens padded coordinates.
func (f *Field) offset(i, j, k int) int {
	return j + (f.dims.Width+2)*i + (f.dims.Depth+2)*(f.dims.Width+2)*k
}

// Offset maps an interior index onto padded storage.
func (f *Field) Offset(idx core.Index) int {
	return f.offset(idx.D+1, idx.W+1, idx.H+1)
}

// Contains reports whether idx is an addressable interior cell.
func (f *Field) Contains(idx core.Index) bool {
	return f.dims.Contains(idx)
}

// Accumulate adds heat to the pending buffer. Out-of-range indices are ignored.
func (f *Field) Accumulate(idx core.Index, amount float64) {
	if !f.Contains(idx) {
		return
	}
	f.acc[f.Offset(idx)] += amount
}

// Pending returns the accumulated, not yet committed heat at idx.
func (f *Field) Pending(idx core.Index) float64 {
	if !f.Contains(idx) {
		return 0
	}
	return f.acc[f.Offset(idx)]
}

// At returns the live heat at idx.
func (f *Field) At(idx core.Index) float64 {
	if !f.Contains(idx) {
		return 0
	}
	return f.live[f.Offset(idx)]
}

// Set overwrites the live heat at idx.
func (f *Field) Set(idx core.Index, heat float64) {
	if !f.Contains(idx) {
		return
	}
	f.live[f.Offset(idx)] = heat
}

// Zero clears both live and pending heat at idx.
func (f *Field) Zero(idx core.Index) {
	if !f.Contains(idx) {
		return
	}
	o := f.Offset(idx)
	f.live[o] = 0
	f.acc[o] = 0
}

// Commit folds pending heat into the live field and clears the accumulator.
func (f *Field) Commit() {
	for i, v := range f.acc {
		f.live[i] += v
		f.acc[i] = 0
	}
}

// Diffuse relaxes the live field towards its neighbors. Each sweep visits
// depth, then width, then height ascending and reads neighbors from the
// buffer being written, so traversal order affects the result.
func (f *Field) Diffuse(rate float64) {
	f.diffuse(rate, Sweeps)
}

func (f *Field) diffuse(rate float64, sweeps int) {
	copy(f.work, f.live)

	d, w, h := f.dims.Depth, f.dims.Width, f.dims.Height
	strideI := w + 2
	strideK := (d + 2) * (w + 2)
	denom := 1 + 6*rate

	for range sweeps {
		for i := 1; i <= d; i++ {
			for j := 1; j <= w; j++ {
				for k := 1; k <= h; k++ {
					c := f.offset(i, j, k)
					sum := f.work[c-1] + f.work[c+1] +
						f.work[c-strideI] + f.work[c+strideI] +
						f.work[c-strideK] + f.work[c+strideK]
					f.work[c] = (f.live[c] + rate*sum) / denom
				}
			}
		}
	}

	f.live, f.work = f.work, f.live
}

// Reset zeroes all buffers.
func (f *Field) Reset() {
	clear(f.live)
	clear(f.acc)
	clear(f.work)
}

// Total sums the live interior heat.
func (f *Field) Total() float64 {
	var sum float64
	f.Each(func(_ core.Index, heat float64) {
		sum += heat
	})
	return sum
}

// Each visits every interior cell in depth, width, height order.
func (f *Field) Each(fn func(idx core.Index, heat float64)) {
	for i := 0; i < f.dims.Depth; i++ {
		for j := 0; j < f.dims.Width; j++ {
			for k := 0; k < f.dims.Height; k++ {
				idx := core.Idx(i, j, k)
				fn(idx, f.live[f.Offset(idx)])
			}
		}
	}
}

// Snapshot copies the live interior values in Each order.
func (f *Field) Snapshot() []float64 {
	out := make([]float64, 0, f.dims.Cells())
	f.Each(func(_ core.Index, heat float64) {
		out = append(out, heat)
	})
	return out
}
