package domain

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Synthesize reconstructs the backscatter raster for a set of gauge levels:
// the sum over modes of basis × de-normalized coefficient, plus the
// all-conditions mean. Modes are accumulated in profile order, so equal
// inputs give bit-identical output.
func Synthesize(p *RegionProfile, levels map[string]float64) (*raster.Raster, error) {
	if p.Reference.AllMean == nil {
		return nil, newError(ErrMissingReferenceStats, p.Region, "all_mean")
	}

	coeffs, err := Coefficients(p, levels)
	if err != nil {
		return nil, err
	}

	out := raster.Filled(p.Grid, 0)
	for k, m := range p.Modes {
		if len(m.Basis.Data) != len(out.Data) {
			return nil, fmt.Errorf("mode %d: %w", k, raster.ErrGridMismatch)
		}
		floats.AddScaled(out.Data, coeffs[k], m.Basis.Data)
	}
	floats.Add(out.Data, p.Reference.AllMean.Data)
	return out, nil
}

// Coefficients evaluates every mode's regressor at its site's level and
// de-normalizes the result.
func Coefficients(p *RegionProfile, levels map[string]float64) ([]float64, error) {
	coeffs := make([]float64, len(p.Modes))
	for k, m := range p.Modes {
		v, ok := levels[m.Site]
		if !ok {
			return nil, newError(ErrMissingSiteLevel, p.Region, m.Site)
		}
		raw, err := m.Regressor.Predict([]float64{v})
		if err != nil {
			return nil, fmt.Errorf("mode %d regressor (site %s): %w", k, m.Site, err)
		}
		coeffs[k] = raw*m.Std + m.Mean
	}
	return coeffs, nil
}
