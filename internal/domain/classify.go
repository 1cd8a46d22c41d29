package domain

import (
	"fmt"
	"math"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// FallbackZScoreThreshold is the fixed anomaly threshold used when a region
// has no threshold model and the caller opts into degraded mode.
const FallbackZScoreThreshold = -3.0

// Threshold sources reported with every classification.
const (
	ThresholdFromModel    = "model"
	ThresholdFromFallback = "fallback"
	ThresholdFromCaller   = "caller"
)

// Classification is the output of the inundation classifier.
type Classification struct {
	Anomaly         *raster.Raster
	Mask            *raster.Mask
	Threshold       float64
	ThresholdSource string
}

// Threshold evaluates the region's threshold model on the levels, ordered the
// way the model was trained.
func Threshold(p *RegionProfile, levels map[string]float64) (float64, error) {
	if p.Threshold == nil {
		return 0, newError(ErrThresholdModelUnavailable, p.Region, "")
	}
	x := make([]float64, len(p.ThresholdInputs))
	for i, site := range p.ThresholdInputs {
		v, ok := levels[site]
		if !ok {
			return 0, newError(ErrMissingSiteLevel, p.Region, site)
		}
		x[i] = v
	}
	t, err := p.Threshold.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("threshold model (region %s): %w", p.Region, err)
	}
	return t, nil
}

// Classify standardizes synthetic against the dry-season statistics and
// thresholds it with the region's learned threshold.
func Classify(p *RegionProfile, synthetic *raster.Raster, levels map[string]float64) (*Classification, error) {
	if err := checkReference(p); err != nil {
		return nil, err
	}
	t, err := Threshold(p, levels)
	if err != nil {
		return nil, err
	}
	c, err := ClassifyWithThreshold(p, synthetic, t)
	if err != nil {
		return nil, err
	}
	c.ThresholdSource = ThresholdFromModel
	return c, nil
}

// ClassifyWithThreshold classifies with an explicit threshold. A pixel is wet
// when its anomaly is strictly below t. Pixels outside the area of interest
// (undefined dry-season mean) are NotApplicable; pixels inside it whose
// anomaly is undefined are dry.
func ClassifyWithThreshold(p *RegionProfile, synthetic *raster.Raster, t float64) (*Classification, error) {
	if err := checkReference(p); err != nil {
		return nil, err
	}
	if err := synthetic.SameGrid(p.Reference.DryMean, p.Reference.DryStd); err != nil {
		return nil, fmt.Errorf("classify region %s: %w", p.Region, err)
	}

	anomaly := Anomaly(synthetic, p.Reference.DryMean, p.Reference.DryStd)
	mask := raster.NewMask(synthetic.Grid)
	for i, a := range anomaly.Data {
		switch {
		case math.IsNaN(p.Reference.DryMean.Data[i]):
			// outside the area of interest
		case a < t:
			mask.Data[i] = raster.Wet
		default:
			mask.Data[i] = raster.Dry
		}
	}
	return &Classification{
		Anomaly:         anomaly,
		Mask:            mask,
		Threshold:       t,
		ThresholdSource: ThresholdFromCaller,
	}, nil
}

// Anomaly returns (synthetic - dryMean) / dryStd, undefined where the
// standard deviation is zero or undefined.
func Anomaly(synthetic, dryMean, dryStd *raster.Raster) *raster.Raster {
	out := raster.New(synthetic.Grid)
	for i, v := range synthetic.Data {
		sd := dryStd.Data[i]
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		out.Data[i] = (v - dryMean.Data[i]) / sd
	}
	return out
}

func checkReference(p *RegionProfile) error {
	switch {
	case p.Reference.DryMean == nil:
		return newError(ErrMissingReferenceStats, p.Region, "dry_mean")
	case p.Reference.DryStd == nil:
		return newError(ErrMissingReferenceStats, p.Region, "dry_std")
	}
	return nil
}
