package domain

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Depth classes, in metres.
const (
	DepthNone     = iota // 0
	DepthShallow         // (0, 1)
	DepthModerate        // [1, 3)
	DepthDeep            // [3, 5)
	DepthVeryDeep        // >= 5
	depthClassCount
)

// DepthClassLabels names each class for summaries.
var DepthClassLabels = [depthClassCount]string{"0", "0-1", "1-3", "3-5", "5+"}

// DepthClass buckets a depth value. Negative or undefined depths return -1.
func DepthClass(d float64) int {
	switch {
	case math.IsNaN(d) || d < 0:
		return -1
	case d == 0:
		return DepthNone
	case d < 1:
		return DepthShallow
	case d < 3:
		return DepthModerate
	case d < 5:
		return DepthDeep
	default:
		return DepthVeryDeep
	}
}

// ClassifyDepth maps a depth raster to class indices; undefined stays undefined.
func ClassifyDepth(depth *raster.Raster) *raster.Raster {
	out := raster.New(depth.Grid)
	for i, d := range depth.Data {
		if c := DepthClass(d); c >= 0 {
			out.Data[i] = float64(c)
		}
	}
	return out
}

// DepthStats summarizes the defined cells of a depth raster.
type DepthStats struct {
	Max       float64        `json:"max_m"`
	Mean      float64        `json:"mean_m"`
	Cells     int            `json:"cells"`
	Histogram map[string]int `json:"histogram"`
}

// SummarizeDepth returns the maximum, mean and class histogram of depth.
func SummarizeDepth(depth *raster.Raster) DepthStats {
	vals := depth.ValidValues()
	s := DepthStats{Cells: len(vals), Histogram: make(map[string]int, depthClassCount)}
	for _, label := range DepthClassLabels {
		s.Histogram[label] = 0
	}
	if len(vals) == 0 {
		return s
	}
	s.Mean = stat.Mean(vals, nil)
	s.Max = floats.Max(vals)
	for _, c := range ClassifyDepth(depth).ValidValues() {
		s.Histogram[DepthClassLabels[int(c)]]++
	}
	return s
}
