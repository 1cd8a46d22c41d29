// Package raster holds the georeferenced grid types shared by every stage of
// an inundation run, plus the focal and cost-distance operators the depth
// estimator is built on.
//
// Rasters are row-major. Row 0 is the first entry of Grid.Y, column 0 the
// first entry of Grid.X; coordinates are cell centres. NaN marks an undefined
// (masked) cell everywhere in this package.
package raster

import (
	"errors"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// ErrGridMismatch is returned when two rasters that must share a grid do not.
var ErrGridMismatch = errors.New("raster grids differ")

// ErrCRSMismatch is returned when rasters in different coordinate reference
// systems are combined.
var ErrCRSMismatch = errors.New("coordinate reference systems differ")

// Grid is the coordinate frame of a raster: one coordinate per column, one
// per row, and the coordinate reference system they are expressed in.
type Grid struct {
	X   []float64 `json:"x"`
	Y   []float64 `json:"y"`
	CRS string    `json:"crs,omitempty"`
}

// NewGrid builds a regular grid whose first cell centre is (x0, y0) and which
// steps by (dx, dy) per column/row. A negative dy gives north-up rasters.
func NewGrid(rows, cols int, x0, y0, dx, dy float64, crs string) Grid {
	g := Grid{X: make([]float64, cols), Y: make([]float64, rows), CRS: crs}
	for c := range g.X {
		g.X[c] = x0 + float64(c)*dx
	}
	for r := range g.Y {
		g.Y[r] = y0 + float64(r)*dy
	}
	return g
}

func (g Grid) Rows() int { return len(g.Y) }
func (g Grid) Cols() int { return len(g.X) }
func (g Grid) Len() int  { return len(g.X) * len(g.Y) }

// Equal reports whether both grids have identical coordinates and CRS.
// SameCRS reports whether g and o can share coordinates. A grid with no CRS
// is taken to be in the other's.
func (g Grid) SameCRS(o Grid) bool {
	return g.CRS == "" || o.CRS == "" || g.CRS == o.CRS
}

func (g Grid) Equal(o Grid) bool {
	return g.CRS == o.CRS && slices.Equal(g.X, o.X) && slices.Equal(g.Y, o.Y)
}

// CellSize returns the absolute column and row spacing. Single-cell axes
// report a spacing of 1.
func (g Grid) CellSize() (dx, dy float64) {
	dx, dy = 1, 1
	if len(g.X) > 1 {
		dx = math.Abs(g.X[1] - g.X[0])
	}
	if len(g.Y) > 1 {
		dy = math.Abs(g.Y[1] - g.Y[0])
	}
	return dx, dy
}

// Bound returns the outer cell-edge extent of the grid.
func (g Grid) Bound() orb.Bound {
	if g.Len() == 0 {
		return orb.Bound{}
	}
	return g.cellBound(0, 0).Union(g.cellBound(g.Rows()-1, g.Cols()-1))
}

func (g Grid) cellBound(row, col int) orb.Bound {
	dx, dy := g.CellSize()
	x, y := g.X[col], g.Y[row]
	return orb.Bound{Min: orb.Point{x - dx/2, y - dy/2}, Max: orb.Point{x + dx/2, y + dy/2}}
}

// Locate returns the cell whose centre is nearest to (x, y). ok is false when
// the point falls outside the grid's cell-edge extent.
func (g Grid) Locate(x, y float64) (row, col int, ok bool) {
	if g.Len() == 0 || !g.Bound().Contains(orb.Point{x, y}) {
		return 0, 0, false
	}
	return nearest(g.Y, y), nearest(g.X, x), true
}

// nearest returns the index of the coordinate closest to v. Axes are
// monotonic, so a binary search on the sort direction is enough.
func nearest(axis []float64, v float64) int {
	n := len(axis)
	if n == 1 {
		return 0
	}
	asc := axis[n-1] > axis[0]
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if (axis[mid] <= v) == asc {
			lo = mid
		} else {
			hi = mid
		}
	}
	if math.Abs(axis[lo]-v) <= math.Abs(axis[hi]-v) {
		return lo
	}
	return hi
}

// Crop returns the sub-grid of cells whose centres fall within b, along with
// the row/column offset of the first retained cell. ok is false when no cell
// centre lies inside b.
func (g Grid) Crop(b orb.Bound) (sub Grid, row0, col0 int, ok bool) {
	r0, r1 := span(g.Y, b.Min[1], b.Max[1])
	c0, c1 := span(g.X, b.Min[0], b.Max[0])
	if r0 > r1 || c0 > c1 {
		return Grid{}, 0, 0, false
	}
	return Grid{
		X:   slices.Clone(g.X[c0 : c1+1]),
		Y:   slices.Clone(g.Y[r0 : r1+1]),
		CRS: g.CRS,
	}, r0, c0, true
}

// span returns the first and last index of axis values inside [lo, hi].
func span(axis []float64, lo, hi float64) (int, int) {
	first, last := len(axis), -1
	for i, v := range axis {
		if v >= lo && v <= hi {
			first = min(first, i)
			last = max(last, i)
		}
	}
	return first, last
}
