package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// Mask cell values. NotApplicable marks cells outside the analysis domain and
// must never be read as dry.
const (
	Dry           uint8 = 0
	Wet           uint8 = 1
	NotApplicable uint8 = 255
)

// Mask is a categorical grid of Dry/Wet/NotApplicable cells.
type Mask struct {
	Grid Grid
	Data []uint8
}

// NewMask allocates a mask on g with every cell NotApplicable.
func NewMask(g Grid) *Mask {
	data := make([]uint8, g.Len())
	for i := range data {
		data[i] = NotApplicable
	}
	return &Mask{Grid: g, Data: data}
}

func (m *Mask) Rows() int { return m.Grid.Rows() }
func (m *Mask) Cols() int { return m.Grid.Cols() }

func (m *Mask) At(row, col int) uint8 { return m.Data[row*m.Grid.Cols()+col] }

func (m *Mask) Set(row, col int, v uint8) { m.Data[row*m.Grid.Cols()+col] = v }

// Count returns how many cells hold v.
func (m *Mask) Count(v uint8) int {
	n := 0
	for _, c := range m.Data {
		if c == v {
			n++
		}
	}
	return n
}

// Bound returns the cell-edge extent of the cells holding v. ok is false when
// no cell holds v.
func (m *Mask) Bound(v uint8) (b orb.Bound, ok bool) {
	cols := m.Cols()
	for i, c := range m.Data {
		if c != v {
			continue
		}
		cell := m.Grid.cellBound(i/cols, i%cols)
		if !ok {
			b, ok = cell, true
			continue
		}
		b = b.Union(cell)
	}
	return b, ok
}

// Float exports the mask as a raster: Dry and Wet as 0 and 1, NotApplicable
// as NaN.
func (m *Mask) Float() *Raster {
	out := &Raster{Grid: m.Grid, Data: make([]float64, len(m.Data))}
	for i, c := range m.Data {
		if c == NotApplicable {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = float64(c)
	}
	return out
}

// MaskFromRaster reads a 0/1 raster back into a mask. NaN cells become
// NotApplicable, any non-zero value is Wet.
func MaskFromRaster(r *Raster) *Mask {
	m := &Mask{Grid: r.Grid, Data: make([]uint8, len(r.Data))}
	for i, v := range r.Data {
		switch {
		case math.IsNaN(v):
			m.Data[i] = NotApplicable
		case v != 0:
			m.Data[i] = Wet
		default:
			m.Data[i] = Dry
		}
	}
	return m
}

// Resample maps m onto g by nearest cell centre; cells outside m's extent are
// NotApplicable.
func (m *Mask) Resample(g Grid) *Mask {
	out := NewMask(g)
	if m.Grid.Equal(g) {
		copy(out.Data, m.Data)
		return out
	}
	forEachCell(g, func(row, col int) {
		if sr, sc, ok := m.Grid.Locate(g.X[col], g.Y[row]); ok {
			out.Data[row*g.Cols()+col] = m.At(sr, sc)
		}
	})
	return out
}
