package domain

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/predictor"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

func testGrid(rows, cols int) raster.Grid {
	return raster.NewGrid(rows, cols, 0.5, float64(rows)-0.5, 1, -1, "EPSG:32648")
}

func rasterOf(t *testing.T, g raster.Grid, rows [][]float64) *raster.Raster {
	t.Helper()
	r, err := raster.FromRows(g, rows)
	require.NoError(t, err)
	return r
}

// twoModeProfile is a 2x2 region with two gauges: mode 0 follows "upper",
// mode 1 follows "lower".
func twoModeProfile(t *testing.T) *RegionProfile {
	t.Helper()
	g := testGrid(2, 2)
	return &RegionProfile{
		Region: "tonle-sap",
		Grid:   g,
		Sites: []Site{
			{ID: "upper", MinLevel: 0, MaxLevel: 10},
			{ID: "lower", MinLevel: -1, MaxLevel: 8},
		},
		Modes: []Mode{
			{
				Site:      "upper",
				Basis:     rasterOf(t, g, [][]float64{{1, 2}, {3, 4}}),
				Regressor: &predictor.Linear{Coefficients: []float64{0.5}, Intercept: -1},
				Mean:      0.2,
				Std:       2,
			},
			{
				Site:      "lower",
				Basis:     rasterOf(t, g, [][]float64{{-1, 0.5}, {0, 2}}),
				Regressor: &predictor.Polynomial{Coefficients: []float64{0.1, 0, 0.01}},
				Mean:      -0.3,
				Std:       1.5,
			},
		},
		Reference: Reference{
			AllMean: rasterOf(t, g, [][]float64{{-12, -13}, {-14, -15}}),
			DryMean: rasterOf(t, g, [][]float64{{-10, -10}, {-10, -10}}),
			DryStd:  rasterOf(t, g, [][]float64{{2, 2}, {2, 2}}),
		},
		Threshold:       &predictor.Constant{Value: -1.5},
		ThresholdInputs: []string{"upper", "lower"},
	}
}

type staticDEM struct {
	dem    *raster.Raster
	err    error
	bounds []orb.Bound
}

func (s *staticDEM) Elevation(_ context.Context, b orb.Bound) (*raster.Raster, error) {
	s.bounds = append(s.bounds, b)
	if s.err != nil {
		return nil, s.err
	}
	return s.dem, nil
}

type profileMap map[string]*RegionProfile

func (m profileMap) Profile(_ context.Context, region string) (*RegionProfile, error) {
	p, ok := m[region]
	if !ok {
		return nil, newError(ErrInvalidRegion, region, "")
	}
	return p, nil
}
