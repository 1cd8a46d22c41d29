package raster

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// Raster is a grid of real values. NaN cells are undefined.
type Raster struct {
	Grid Grid
	Data []float64
}

// New allocates a raster on g with every cell undefined.
func New(g Grid) *Raster {
	return Filled(g, math.NaN())
}

// Filled allocates a raster on g with every cell set to v.
func Filled(g Grid, v float64) *Raster {
	data := make([]float64, g.Len())
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return &Raster{Grid: g, Data: data}
}

// FromRows builds a raster from row slices, mainly for tests and fixtures.
func FromRows(g Grid, rows [][]float64) (*Raster, error) {
	if len(rows) != g.Rows() {
		return nil, fmt.Errorf("raster rows: got %d, grid has %d", len(rows), g.Rows())
	}
	r := &Raster{Grid: g, Data: make([]float64, 0, g.Len())}
	for i, row := range rows {
		if len(row) != g.Cols() {
			return nil, fmt.Errorf("raster row %d: got %d columns, grid has %d", i, len(row), g.Cols())
		}
		r.Data = append(r.Data, row...)
	}
	return r, nil
}

func (r *Raster) Rows() int { return r.Grid.Rows() }
func (r *Raster) Cols() int { return r.Grid.Cols() }

// Index converts a row/column pair into an offset into Data.
func (r *Raster) Index(row, col int) int { return row*r.Grid.Cols() + col }

func (r *Raster) At(row, col int) float64 { return r.Data[r.Index(row, col)] }

func (r *Raster) Set(row, col int, v float64) { r.Data[r.Index(row, col)] = v }

// Valid reports whether the cell is inside the raster and defined.
func (r *Raster) Valid(row, col int) bool {
	if row < 0 || col < 0 || row >= r.Rows() || col >= r.Cols() {
		return false
	}
	return !math.IsNaN(r.Data[r.Index(row, col)])
}

// Clone returns a deep copy sharing no memory with r.
func (r *Raster) Clone() *Raster {
	return &Raster{Grid: r.Grid, Data: slices.Clone(r.Data)}
}

// Dense exposes the raster data as a gonum matrix without copying.
func (r *Raster) Dense() *mat.Dense {
	return mat.NewDense(r.Rows(), r.Cols(), r.Data)
}

// CountValid returns the number of defined cells.
func (r *Raster) CountValid() int {
	n := 0
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// ValidValues returns the defined cell values in row-major order.
func (r *Raster) ValidValues() []float64 {
	out := make([]float64, 0, len(r.Data))
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// SameGrid returns ErrGridMismatch unless every raster shares r's grid.
func (r *Raster) SameGrid(others ...*Raster) error {
	for _, o := range others {
		if o == nil {
			continue
		}
		if !r.Grid.Equal(o.Grid) {
			return ErrGridMismatch
		}
	}
	return nil
}

// Crop copies the cells whose centres lie inside b into a new raster.
func (r *Raster) Crop(b orb.Bound) (*Raster, bool) {
	sub, row0, col0, ok := r.Grid.Crop(b)
	if !ok {
		return nil, false
	}
	out := &Raster{Grid: sub, Data: make([]float64, 0, sub.Len())}
	for row := 0; row < sub.Rows(); row++ {
		start := r.Index(row0+row, col0)
		out.Data = append(out.Data, r.Data[start:start+sub.Cols()]...)
	}
	return out, true
}

// Resample maps r onto g by nearest cell centre. Cells of g outside r's
// extent are undefined.
func (r *Raster) Resample(g Grid) *Raster {
	if r.Grid.Equal(g) {
		return r.Clone()
	}
	out := New(g)
	forEachCell(g, func(row, col int) {
		if sr, sc, ok := r.Grid.Locate(g.X[col], g.Y[row]); ok {
			out.Data[row*g.Cols()+col] = r.At(sr, sc)
		}
	})
	return out
}

// forEachCell visits the cells of g, spreading row blocks across CPUs.
func forEachCell(g Grid, fn func(row, col int)) {
	cols := g.Cols()
	forRowBlocks(g.Rows(), func(r0, r1 int) {
		for row := r0; row < r1; row++ {
			for col := 0; col < cols; col++ {
				fn(row, col)
			}
		}
	})
}
