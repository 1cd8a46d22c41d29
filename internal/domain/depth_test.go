package domain

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

func maskOf(g raster.Grid, wet ...[2]int) *raster.Mask {
	m := raster.NewMask(g)
	for i := range m.Data {
		m.Data[i] = raster.Dry
	}
	for _, c := range wet {
		m.Set(c[0], c[1], raster.Wet)
	}
	return m
}

func TestDepth_SingleCellSurroundedByBoundary(t *testing.T) {
	const e = 2.75
	g := testGrid(3, 3)
	dem := rasterOf(t, g, [][]float64{
		{e, e, e},
		{e, 0, e},
		{e, e, e},
	})
	mask := maskOf(g, [2]int{1, 1})

	depth, err := NewDepthEstimator(nil).FromDEM(mask, dem)
	require.NoError(t, err)

	assert.InDelta(t, e, depth.At(1, 1), 1e-9)
	assert.Equal(t, 1, depth.CountValid(), "only the flood extent carries depth")
}

func TestDepth_NegativeSurfaceClampsToZero(t *testing.T) {
	g := testGrid(5, 5)
	dem := rasterOf(t, g, [][]float64{
		{1, 1, 1, 1, 1},
		{1, 2, 2, 2, 1},
		{1, 2, 2, 2, 1},
		{1, 2, 2, 2, 1},
		{1, 1, 1, 1, 1},
	})
	var wet [][2]int
	for r := 1; r <= 3; r++ {
		for c := 1; c <= 3; c++ {
			wet = append(wet, [2]int{r, c})
		}
	}
	mask := maskOf(g, wet...)

	depth, err := NewDepthEstimator(nil).FromDEM(mask, dem)
	require.NoError(t, err)

	for _, c := range wet {
		assert.Equal(t, 0.0, depth.At(c[0], c[1]), "cell %v", c)
	}
	assert.True(t, math.IsNaN(depth.At(0, 0)))
}

func TestDepth_PushLimitLeavesFarCellsUndefined(t *testing.T) {
	g := testGrid(1, 9)
	dem := raster.Filled(g, 0)
	dem.Set(0, 0, 3)
	dem.Set(0, 8, 3)
	var wet [][2]int
	for c := 1; c <= 7; c++ {
		wet = append(wet, [2]int{0, c})
	}

	est := NewDepthEstimator(nil)
	est.MaxDistance = 2.5
	depth, err := est.FromDEM(maskOf(g, wet...), dem)
	require.NoError(t, err)

	assert.True(t, depth.Valid(0, 1))
	assert.True(t, depth.Valid(0, 7))
	assert.False(t, depth.Valid(0, 4))
}

func TestDepth_EmptyFloodExtent(t *testing.T) {
	g := testGrid(3, 3)
	dem := raster.Filled(g, 1)

	_, err := NewDepthEstimator(nil).FromDEM(maskOf(g), dem)
	assert.ErrorIs(t, err, ErrEmptyFloodExtent)

	_, err = NewDepthEstimator(&staticDEM{dem: dem}).Estimate(context.Background(), maskOf(g))
	assert.ErrorIs(t, err, ErrEmptyFloodExtent)
}

func TestDepth_NoBoundaryIsUndefinedInterpolation(t *testing.T) {
	g := testGrid(2, 2)
	mask := maskOf(g, [2]int{0, 0}, [2]int{0, 1}, [2]int{1, 0}, [2]int{1, 1})

	_, err := NewDepthEstimator(nil).FromDEM(mask, raster.Filled(g, 1))
	assert.ErrorIs(t, err, ErrUndefinedInterpolation)
}

func TestDepth_DEMOutsideFloodExtent(t *testing.T) {
	mask := maskOf(testGrid(3, 3), [2]int{1, 1})
	far := raster.Filled(raster.NewGrid(3, 3, 100.5, 102.5, 1, -1, "EPSG:32648"), 1)

	_, err := NewDepthEstimator(nil).FromDEM(mask, far)
	assert.ErrorIs(t, err, ErrDEMUnavailable)
}

func TestDepth_RejectsForeignCRS(t *testing.T) {
	g := testGrid(3, 3)
	mask := maskOf(g, [2]int{1, 1})
	wgs84 := raster.NewGrid(3, 3, 0.5, 2.5, 1, -1, "EPSG:4326")

	_, err := NewDepthEstimator(nil).FromDEM(mask, raster.Filled(wgs84, 1))
	assert.ErrorIs(t, err, ErrDEMUnavailable)
	assert.ErrorIs(t, err, raster.ErrCRSMismatch)

	est := NewDepthEstimator(nil)
	est.PermanentWater = maskOf(wgs84, [2]int{1, 2})
	_, err = est.FromDEM(mask, raster.Filled(g, 1))
	assert.ErrorIs(t, err, raster.ErrCRSMismatch)
	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "permanent water", derr.Key)
}

func TestDepth_EstimateRequestsBufferedBound(t *testing.T) {
	g := testGrid(3, 3)
	dem := rasterOf(t, g, [][]float64{{1, 1, 1}, {1, 0, 1}, {1, 1, 1}})
	provider := &staticDEM{dem: dem}

	est := NewDepthEstimator(provider)
	est.Buffer = 10
	_, err := est.Estimate(context.Background(), maskOf(g, [2]int{1, 1}))
	require.NoError(t, err)

	require.Len(t, provider.bounds, 1)
	assert.Equal(t, -9.0, provider.bounds[0].Min[0])
	assert.Equal(t, 12.0, provider.bounds[0].Max[1])

	provider.err = ErrDEMUnavailable
	_, err = est.Estimate(context.Background(), maskOf(g, [2]int{1, 1}))
	assert.True(t, errors.Is(err, ErrDEMUnavailable))
}

// striped returns a 5x5 surface cycling 10, 11, 12 across columns so every
// interior cell has a non-zero MAD.
func striped(t *testing.T) *raster.Raster {
	g := testGrid(5, 5)
	r := raster.New(g)
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			r.Set(row, col, 10+float64(col%3))
		}
	}
	return r
}

func TestRepairOutliers_ReplacesSpikes(t *testing.T) {
	dem := striped(t)
	dem.Set(2, 2, 112)

	got := RepairOutliers(LocalOps{}, dem)

	assert.Equal(t, 11.0, got.At(2, 2))
	for i := range dem.Data {
		if i == dem.Index(2, 2) {
			continue
		}
		assert.Equal(t, dem.Data[i], got.Data[i], "cell %d must be untouched", i)
	}
}

func TestRepairOutliers_KeepsPits(t *testing.T) {
	dem := striped(t)
	dem.Set(2, 2, -88)

	got := RepairOutliers(LocalOps{}, dem)
	assert.Equal(t, -88.0, got.At(2, 2))
}

func TestRepairOutliers_KeepsUndefinedCells(t *testing.T) {
	dem := striped(t)
	dem.Set(0, 0, math.NaN())

	got := RepairOutliers(LocalOps{}, dem)
	assert.True(t, math.IsNaN(got.At(0, 0)))
}

type countingOps struct {
	LocalOps
	costCalls int
}

func (c *countingOps) CostDistance(cost *raster.Raster, sources []bool, maxDistance float64) *raster.Raster {
	c.costCalls++
	return c.LocalOps.CostDistance(cost, sources, maxDistance)
}

func TestDepth_RunsOnInjectedOps(t *testing.T) {
	g := testGrid(3, 3)
	dem := rasterOf(t, g, [][]float64{{1, 1, 1}, {1, 0, 1}, {1, 1, 1}})
	ops := &countingOps{}

	est := NewDepthEstimator(nil)
	est.Ops = ops
	_, err := est.FromDEM(maskOf(g, [2]int{1, 1}), dem)
	require.NoError(t, err)
	assert.Equal(t, 3, ops.costCalls)
}

func TestDepth_PermanentWaterExtendsTheSurface(t *testing.T) {
	g := testGrid(1, 5)
	dem := rasterOf(t, g, [][]float64{{4, 0, 0, 0, 4}})
	perm := maskOf(g, [2]int{0, 2}, [2]int{0, 3})

	est := NewDepthEstimator(nil)
	est.PermanentWater = perm
	depth, err := est.FromDEM(maskOf(g, [2]int{0, 1}), dem)
	require.NoError(t, err)

	assert.True(t, depth.Valid(0, 1))
	assert.False(t, depth.Valid(0, 2), "permanent water is not reported")
	assert.InDelta(t, 4.0, depth.At(0, 1), 1e-9)
}
