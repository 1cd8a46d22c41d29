package domain

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Depth estimation constants. costSeed is the traversal cost of every
// non-source cell in the three auxiliary cost rasters; it only has to dominate
// the seed values so the interpolation ratio is well conditioned.
const (
	costSeed          = 10000.0
	zScoreScale       = 0.6745
	zScoreOutlier     = 3.5
	DefaultBuffer     = 1000.0
	DefaultPushLimit  = 5000.0
	defaultFocalRange = 1
)

// Ops is the raster-algebra backend the depth estimator runs on.
type Ops interface {
	FocalMedian(r *raster.Raster, k raster.Kernel) *raster.Raster
	FocalMax(r *raster.Raster, radius int) *raster.Raster
	FocalMean(r *raster.Raster, radius int) *raster.Raster
	CostDistance(cost *raster.Raster, sources []bool, maxDistance float64) *raster.Raster
}

// LocalOps runs every operator in process.
type LocalOps struct{}

func (LocalOps) FocalMedian(r *raster.Raster, k raster.Kernel) *raster.Raster {
	return raster.FocalMedian(r, k)
}

func (LocalOps) FocalMax(r *raster.Raster, radius int) *raster.Raster {
	return raster.FocalMax(r, radius)
}

func (LocalOps) FocalMean(r *raster.Raster, radius int) *raster.Raster {
	return raster.FocalMean(r, radius)
}

func (LocalOps) CostDistance(cost *raster.Raster, sources []bool, maxDistance float64) *raster.Raster {
	return raster.CostDistance(cost, sources, maxDistance)
}

// DepthEstimator turns a flood mask into a water depth raster by rebuilding
// the water surface from the elevation of the flood's dry boundary.
type DepthEstimator struct {
	DEM DEMProvider
	Ops Ops

	// Buffer pads the flood bounding box when requesting elevations so the
	// boundary ring is covered.
	Buffer float64
	// MaxDistance is the cost-distance push limit in DEM CRS units; zero or
	// less means unbounded.
	MaxDistance float64
	// Elevations below MinElevation are voids.
	MinElevation float64
	// PermanentWater, when set, is merged into the flood extent before the
	// boundary is traced so river channels do not seed the surface.
	PermanentWater *raster.Mask
}

// NewDepthEstimator returns an estimator with the default buffer and push
// limit running on LocalOps.
func NewDepthEstimator(dem DEMProvider) *DepthEstimator {
	return &DepthEstimator{
		DEM:         dem,
		Ops:         LocalOps{},
		Buffer:      DefaultBuffer,
		MaxDistance: DefaultPushLimit,
	}
}

// Estimate fetches elevations around the wet cells of mask and derives depth.
func (e *DepthEstimator) Estimate(ctx context.Context, mask *raster.Mask) (*raster.Raster, error) {
	b, ok := mask.Bound(raster.Wet)
	if !ok {
		return nil, newError(ErrEmptyFloodExtent, "", "")
	}
	if e.DEM == nil {
		return nil, newError(ErrDEMUnavailable, "", "no provider")
	}
	dem, err := e.DEM.Elevation(ctx, b.Pad(e.Buffer))
	if err != nil {
		return nil, fmt.Errorf("fetch elevation: %w", err)
	}
	return e.FromDEM(mask, dem)
}

// FromDEM derives depth for the wet cells of mask from dem. The result lies
// on the mask's grid; it is non-negative inside the flood extent and
// undefined everywhere else.
func (e *DepthEstimator) FromDEM(mask *raster.Mask, dem *raster.Raster) (*raster.Raster, error) {
	if mask.Count(raster.Wet) == 0 {
		return nil, newError(ErrEmptyFloodExtent, "", "")
	}
	ops := e.ops()

	flood, err := e.floodOn(mask, dem.Grid)
	if err != nil {
		return nil, err
	}
	if !anyTrue(flood) {
		return nil, newError(ErrDEMUnavailable, "", "flood extent outside elevation coverage")
	}

	elev := dem.Clone()
	for i, v := range elev.Data {
		if v < e.MinElevation {
			elev.Data[i] = math.NaN()
		}
	}
	cond := RepairOutliers(ops, elev)

	ring := boundaryRing(ops, cond.Grid, flood)
	boundary := raster.New(cond.Grid)
	for i, r := range ring {
		if r {
			boundary.Data[i] = cond.Data[i]
		}
	}
	boundary = RepairOutliers(ops, boundary)

	surface, err := e.interpolate(ops, boundary, flood, ring)
	if err != nil {
		return nil, err
	}

	raw := raster.New(cond.Grid)
	for i, f := range flood {
		if f {
			raw.Data[i] = surface.Data[i] - cond.Data[i]
		}
	}
	smooth := ops.FocalMean(raw, defaultFocalRange)
	for i, v := range smooth.Data {
		if v < 0 {
			smooth.Data[i] = 0
		}
	}

	out := smooth.Resample(mask.Grid)
	for i, m := range mask.Data {
		if m != raster.Wet {
			out.Data[i] = math.NaN()
		}
	}
	return out, nil
}

func (e *DepthEstimator) ops() Ops {
	if e.Ops == nil {
		return LocalOps{}
	}
	return e.Ops
}

// floodOn maps the wet cells, plus permanent water, onto g.
func (e *DepthEstimator) floodOn(mask *raster.Mask, g raster.Grid) ([]bool, error) {
	if err := checkCRS("dem", mask.Grid, g); err != nil {
		return nil, err
	}
	m := mask.Resample(g)
	var perm *raster.Mask
	if e.PermanentWater != nil {
		if err := checkCRS("permanent water", mask.Grid, e.PermanentWater.Grid); err != nil {
			return nil, err
		}
		perm = e.PermanentWater.Resample(g)
	}
	flood := make([]bool, g.Len())
	for i := range flood {
		flood[i] = m.Data[i] == raster.Wet || (perm != nil && perm.Data[i] == raster.Wet)
	}
	return flood, nil
}

func checkCRS(layer string, mask, other raster.Grid) error {
	if mask.SameCRS(other) {
		return nil
	}
	return &Error{
		Kind: ErrDEMUnavailable,
		Key:  layer,
		Err:  fmt.Errorf("%w: mask %s, %s %s", raster.ErrCRSMismatch, mask.CRS, layer, other.CRS),
	}
}

// interpolate spreads the boundary elevations across the flood extent. Three
// cost rasters share the same friction away from the seeds and differ only at
// them (0, 1 and the seed elevation); the ratio of their accumulated
// differences recovers the elevation of the seed each cell was reached from.
func (e *DepthEstimator) interpolate(ops Ops, boundary *raster.Raster, flood, ring []bool) (*raster.Raster, error) {
	sources := make([]bool, len(flood))
	cost0 := raster.New(boundary.Grid)
	cost1 := raster.New(boundary.Grid)
	cost2 := raster.New(boundary.Grid)
	for i := range flood {
		switch {
		case ring[i] && !math.IsNaN(boundary.Data[i]):
			sources[i] = true
			cost0.Data[i], cost1.Data[i], cost2.Data[i] = 0, 1, boundary.Data[i]
		case flood[i] || ring[i]:
			cost0.Data[i], cost1.Data[i], cost2.Data[i] = costSeed, costSeed, costSeed
		}
	}

	acc0 := ops.CostDistance(cost0, sources, e.MaxDistance)
	acc1 := ops.CostDistance(cost1, sources, e.MaxDistance)
	acc2 := ops.CostDistance(cost2, sources, e.MaxDistance)

	surface := raster.New(boundary.Grid)
	defined := 0
	for i, f := range flood {
		if !f {
			continue
		}
		den := acc1.Data[i] - acc0.Data[i]
		if den == 0 || math.IsNaN(den) {
			continue
		}
		v := (acc2.Data[i] - acc0.Data[i]) / den
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		surface.Data[i] = v
		defined++
	}
	if defined == 0 {
		return nil, newError(ErrUndefinedInterpolation, "", "")
	}
	return surface, nil
}

// RepairOutliers replaces cells that spike above their 3×3 neighbourhood
// with the median of their eight neighbours. A cell is a spike when its
// modified z-score, 0.6745 × (v - median) / MAD, exceeds 3.5; cells whose
// local MAD is zero have no score and are kept.
func RepairOutliers(ops Ops, r *raster.Raster) *raster.Raster {
	med := ops.FocalMedian(r, raster.Square(defaultFocalRange))
	diff := raster.New(r.Grid)
	absDiff := raster.New(r.Grid)
	for i, v := range r.Data {
		d := v - med.Data[i]
		diff.Data[i] = d
		absDiff.Data[i] = math.Abs(d)
	}
	mad := ops.FocalMedian(absDiff, raster.Square(defaultFocalRange))
	ring := ops.FocalMedian(r, raster.Ring())

	out := r.Clone()
	for i, d := range diff.Data {
		if math.IsNaN(d) || mad.Data[i] == 0 || math.IsNaN(mad.Data[i]) {
			continue
		}
		if zScoreScale*d/mad.Data[i] > zScoreOutlier && !math.IsNaN(ring.Data[i]) {
			out.Data[i] = ring.Data[i]
		}
	}
	return out
}

// boundaryRing marks the cells one step outside the flood extent.
func boundaryRing(ops Ops, g raster.Grid, flood []bool) []bool {
	f := raster.Filled(g, 0)
	for i, wet := range flood {
		if wet {
			f.Data[i] = 1
		}
	}
	dilated := ops.FocalMax(f, defaultFocalRange)
	ring := make([]bool, len(flood))
	for i, wet := range flood {
		ring[i] = !wet && dilated.Data[i] == 1
	}
	return ring
}

func anyTrue(v []bool) bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}
