package raster

import (
	"container/heap"
	"math"
)

var neighbours = [8][2]int{
	{-1, 0}, {1, 0}, {0, -1}, {0, 1},
	{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
}

// CostDistance accumulates the least traversal cost from the nearest source
// cell to every other cell. Stepping between two adjacent cells costs the mean
// of their cost values times the step length (cell size, or its diagonal).
// Source cells start at zero.
//
// Undefined cost cells are impassable. Propagation along a path stops once its
// geometric length would exceed maxDistance; a non-positive maxDistance means
// unbounded. Cells no path reaches are undefined in the result.
func CostDistance(cost *Raster, sources []bool, maxDistance float64) *Raster {
	rows, cols := cost.Rows(), cost.Cols()
	dx, dy := cost.Grid.CellSize()
	steps := [8]float64{dy, dy, dx, dx}
	diag := math.Hypot(dx, dy)
	for i := 4; i < 8; i++ {
		steps[i] = diag
	}

	acc := New(cost.Grid)
	dist := make([]float64, len(cost.Data))
	done := make([]bool, len(cost.Data))

	pq := &cellQueue{}
	for i, src := range sources {
		if !src || math.IsNaN(cost.Data[i]) {
			continue
		}
		acc.Data[i] = 0
		heap.Push(pq, queued{index: i, cost: 0})
	}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queued)
		if done[cur.index] {
			continue
		}
		done[cur.index] = true
		row, col := cur.index/cols, cur.index%cols
		here := cost.Data[cur.index]

		for n, off := range neighbours {
			nr, nc := row+off[0], col+off[1]
			if nr < 0 || nc < 0 || nr >= rows || nc >= cols {
				continue
			}
			ni := nr*cols + nc
			if done[ni] || math.IsNaN(cost.Data[ni]) {
				continue
			}
			d := dist[cur.index] + steps[n]
			if maxDistance > 0 && d > maxDistance {
				continue
			}
			c := cur.cost + (here+cost.Data[ni])/2*steps[n]
			if math.IsNaN(acc.Data[ni]) || c < acc.Data[ni] {
				acc.Data[ni] = c
				dist[ni] = d
				heap.Push(pq, queued{index: ni, cost: c})
			}
		}
	}
	return acc
}

type queued struct {
	index int
	cost  float64
}

// cellQueue is a min-heap on accumulated cost; equal costs pop in cell order
// so results do not depend on push order.
type cellQueue []queued

func (q cellQueue) Len() int { return len(q) }
func (q cellQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].index < q[j].index
}
func (q cellQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *cellQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
