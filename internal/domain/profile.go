package domain

import (
	"context"
	"math"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Predictor is a trained model seen as a black box.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// Site is a water-level gauge and the physically valid range of its readings.
type Site struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	MinLevel float64 `json:"min_level"`
	MaxLevel float64 `json:"max_level"`
}

// InRange reports whether level lies within the site's valid range. Sites
// without a range accept everything.
func (s Site) InRange(level float64) bool {
	if s.MinLevel == 0 && s.MaxLevel == 0 {
		return true
	}
	return level >= s.MinLevel && level <= s.MaxLevel
}

// Mode is one spatial basis raster, the site whose level drives it, and the
// regressor that turns that level into the mode's temporal coefficient.
// Mean and Std de-normalize the regressor output.
type Mode struct {
	Site      string
	Basis     *raster.Raster
	Regressor Predictor
	Mean      float64
	Std       float64
}

// Reference holds the region's backscatter baseline statistics.
type Reference struct {
	AllMean *raster.Raster
	DryMean *raster.Raster
	DryStd  *raster.Raster
}

// RegionProfile is the complete, validated artifact set of one region. It is
// built once by the profile package and must not be modified afterwards;
// every request shares it.
type RegionProfile struct {
	Region    string
	Grid      raster.Grid
	Sites     []Site
	Modes     []Mode
	Reference Reference

	// Threshold is nil when the region ships no threshold model.
	Threshold Predictor
	// ThresholdInputs is the site order the threshold model was trained on.
	ThresholdInputs []string
}

// Site looks up a gauge by identifier.
func (p *RegionProfile) Site(id string) (Site, bool) {
	for _, s := range p.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}

// ProfileSource resolves a region key to its profile.
type ProfileSource interface {
	Profile(ctx context.Context, region string) (*RegionProfile, error)
}

// DEMProvider returns elevations covering bound, in the bound's CRS. Void
// cells are NaN. It fails with ErrDEMUnavailable when nothing covers bound.
type DEMProvider interface {
	Elevation(ctx context.Context, bound orb.Bound) (*raster.Raster, error)
}

// CheckLevels lists the sites whose level lies outside their physical range,
// sorted by profile order. The core never rejects such levels; extrapolation
// is the caller's call.
func CheckLevels(p *RegionProfile, levels map[string]float64) []string {
	var out []string
	for _, s := range p.Sites {
		v, ok := levels[s.ID]
		if !ok {
			continue
		}
		if math.IsNaN(v) || !s.InRange(v) {
			out = append(out, s.ID)
		}
	}
	return out
}
