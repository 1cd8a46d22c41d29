package raster

import (
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Kernel is a set of neighbour offsets relative to the focal cell.
type Kernel struct {
	dRow []int
	dCol []int
}

// Square returns the (2*radius+1)² window including the focal cell.
func Square(radius int) Kernel {
	var k Kernel
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			k.dRow = append(k.dRow, dr)
			k.dCol = append(k.dCol, dc)
		}
	}
	return k
}

// Ring returns the 8-neighbourhood with the focal cell left out.
func Ring() Kernel {
	var k Kernel
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			k.dRow = append(k.dRow, dr)
			k.dCol = append(k.dCol, dc)
		}
	}
	return k
}

// Size is the number of cells the kernel covers.
func (k Kernel) Size() int { return len(k.dRow) }

// FocalMedian returns the median of the defined cells under k around every
// cell. Cells with no defined neighbour stay undefined.
func FocalMedian(r *Raster, k Kernel) *Raster {
	return focal(r, k, median)
}

// FocalMax returns the maximum of the defined cells in the square window of
// the given radius.
func FocalMax(r *Raster, radius int) *Raster {
	return focal(r, Square(radius), func(vals []float64) float64 {
		return slices.Max(vals)
	})
}

// FocalMean returns the mean of the defined cells in the square window of the
// given radius, evaluated only where the focal cell itself is defined.
func FocalMean(r *Raster, radius int) *Raster {
	k := Square(radius)
	out := New(r.Grid)
	cols := r.Cols()
	forRowBlocks(r.Rows(), func(r0, r1 int) {
		for row := r0; row < r1; row++ {
			for col := 0; col < cols; col++ {
				if !r.Valid(row, col) {
					continue
				}
				total, n := 0.0, 0.0
				for i := range k.dRow {
					if r.Valid(row+k.dRow[i], col+k.dCol[i]) {
						total += r.At(row+k.dRow[i], col+k.dCol[i])
						n++
					}
				}
				out.Data[row*cols+col] = total / n
			}
		}
	})
	return out
}

func focal(r *Raster, k Kernel, reduce func([]float64) float64) *Raster {
	out := New(r.Grid)
	cols := r.Cols()
	forRowBlocks(r.Rows(), func(r0, r1 int) {
		vals := make([]float64, 0, k.Size())
		for row := r0; row < r1; row++ {
			for col := 0; col < cols; col++ {
				vals = vals[:0]
				for i := range k.dRow {
					if r.Valid(row+k.dRow[i], col+k.dCol[i]) {
						vals = append(vals, r.At(row+k.dRow[i], col+k.dCol[i]))
					}
				}
				if len(vals) > 0 {
					out.Data[row*cols+col] = reduce(vals)
				}
			}
		}
	})
	return out
}

// median sorts vals in place. Even-length inputs average the two middle values.
func median(vals []float64) float64 {
	slices.Sort(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// Median returns the median of the defined values, or NaN if there are none.
func Median(vals []float64) float64 {
	defined := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return math.NaN()
	}
	return median(defined)
}

// forRowBlocks splits [0, rows) into one contiguous block per CPU and runs fn
// on each block concurrently. Blocks never overlap, so fn may write any cell
// of its own rows without locking.
func forRowBlocks(rows int, fn func(r0, r1 int)) {
	if rows == 0 {
		return
	}
	workers := min(runtime.NumCPU(), rows)
	blockSize := (rows + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < rows; start += blockSize {
		r0, r1 := start, min(start+blockSize, rows)
		g.Go(func() error {
			fn(r0, r1)
			return nil
		})
	}
	_ = g.Wait()
}
